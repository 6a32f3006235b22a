// Package engine implements the Sync Engine: session lifecycle, the
// switchCycle hot path, and the validation and state-transition rules that
// the State Store itself knows nothing about.
package engine

import "time"

// SyncMode selects the time accounting policy for a session.
type SyncMode string

const (
	ModePerParticipant SyncMode = "per_participant"
	ModePerCycle       SyncMode = "per_cycle"
	ModePerGroup       SyncMode = "per_group"
	ModeGlobal         SyncMode = "global"
	ModeCountUp        SyncMode = "count_up"
)

func validSyncMode(m SyncMode) bool {
	switch m {
	case ModePerParticipant, ModePerCycle, ModePerGroup, ModeGlobal, ModeCountUp:
		return true
	}
	return false
}

// Status is a session's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Participant is one entity within a session holding a time budget and
// rotation index.
type Participant struct {
	ParticipantID   string  `json:"participant_id"`
	ParticipantIndex int    `json:"participant_index"`
	TotalTimeMs     int64   `json:"total_time_ms"`
	TimeUsedMs      int64   `json:"time_used_ms"`
	CycleCount      int64   `json:"cycle_count"`
	IsActive        bool    `json:"is_active"`
	HasExpired      bool    `json:"has_expired"`
	GroupID         *string `json:"group_id,omitempty"`
}

// Session is the authoritative record owned exclusively by the State Store;
// the Sync Engine borrows a snapshot, computes a new value, and writes it
// back under a version check.
type Session struct {
	SessionID           string        `json:"session_id"`
	SyncMode            SyncMode      `json:"sync_mode"`
	Status              Status        `json:"status"`
	Version             int64         `json:"version"`
	Participants        []Participant `json:"participants"`
	ActiveParticipantID *string       `json:"active_participant_id"`
	TotalTimeMs         int64         `json:"total_time_ms"`
	TimePerCycleMs      *int64        `json:"time_per_cycle_ms,omitempty"`
	IncrementMs         int64         `json:"increment_ms"`
	MaxTimeMs           *int64        `json:"max_time_ms,omitempty"`
	CycleStartedAt       *time.Time   `json:"cycle_started_at"`
	SessionStartedAt     *time.Time   `json:"session_started_at"`
	SessionCompletedAt   *time.Time   `json:"session_completed_at"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// participantIndex returns the slice index of the participant with the given
// id, or -1 if not present.
func (s *Session) participantIndex(id string) int {
	for i := range s.Participants {
		if s.Participants[i].ParticipantID == id {
			return i
		}
	}
	return -1
}

// CreateConfig is the validated input to Create.
type CreateConfig struct {
	SessionID      string                 `json:"session_id" validate:"required,uuid"`
	SyncMode       SyncMode               `json:"sync_mode" validate:"required"`
	Participants   []ParticipantConfig    `json:"participants" validate:"required,min=1,max=1000,dive"`
	TotalTimeMs    int64                  `json:"total_time_ms" validate:"required,min=1000,max=86400000"`
	TimePerCycleMs *int64                 `json:"time_per_cycle_ms,omitempty" validate:"omitempty,min=0"`
	IncrementMs    int64                  `json:"increment_ms" validate:"min=0"`
	MaxTimeMs      *int64                 `json:"max_time_ms,omitempty" validate:"omitempty,min=0"`
}

// ParticipantConfig is the validated per-participant input to Create.
type ParticipantConfig struct {
	ParticipantID   string  `json:"participant_id" validate:"required,uuid"`
	ParticipantIndex int    `json:"participant_index" validate:"min=0"`
	TotalTimeMs     int64   `json:"total_time_ms" validate:"required,min=1000,max=86400000"`
	GroupID         *string `json:"group_id,omitempty" validate:"omitempty,uuid"`
}

// SwitchResult is returned by SwitchCycle.
type SwitchResult struct {
	ActiveParticipantID string        `json:"active_participant_id"`
	CycleStartedAt       time.Time    `json:"cycle_started_at"`
	Participants         []Participant `json:"participants"`
	Status                Status       `json:"status"`
	ExpiredParticipantID *string       `json:"expired_participant_id,omitempty"`
}
