package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateCreateConfig runs struct-tag validation (go-playground/validator)
// over a CreateConfig and layers the cross-field rules §4.4.1 requires that
// tags alone cannot express: unique participant ids, a permutation of
// indices, and a well-formed sync mode.
func ValidateCreateConfig(cfg *CreateConfig) *Error {
	var fields []FieldError

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, FieldError{
					Field:   fe.Namespace(),
					Message: fmt.Sprintf("failed on %q validation", fe.Tag()),
				})
			}
		} else {
			fields = append(fields, FieldError{Field: "config", Message: err.Error()})
		}
	}

	if !validSyncMode(cfg.SyncMode) {
		fields = append(fields, FieldError{Field: "sync_mode", Message: "not one of the five recognized modes"})
	}

	seenIDs := make(map[string]struct{}, len(cfg.Participants))
	seenIdx := make(map[int]struct{}, len(cfg.Participants))
	for _, p := range cfg.Participants {
		if _, dup := seenIDs[p.ParticipantID]; dup {
			fields = append(fields, FieldError{Field: "participants", Message: fmt.Sprintf("duplicate participant_id %q", p.ParticipantID)})
		}
		seenIDs[p.ParticipantID] = struct{}{}

		if _, dup := seenIdx[p.ParticipantIndex]; dup {
			fields = append(fields, FieldError{Field: "participants", Message: fmt.Sprintf("duplicate participant_index %d", p.ParticipantIndex)})
		}
		seenIdx[p.ParticipantIndex] = struct{}{}
	}
	for i := range cfg.Participants {
		if _, ok := seenIdx[i]; !ok {
			fields = append(fields, FieldError{Field: "participants", Message: "participant_index values must form a permutation of 0..N-1"})
			break
		}
	}

	if len(fields) > 0 {
		return NewValidationError(fields...)
	}
	return nil
}
