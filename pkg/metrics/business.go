package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics contains all business-level metrics for the turn/timer sync
// service.
//
// Business metrics track high-level session lifecycle and hot-path
// operations:
//   - Session lifecycle (created, completed, cancelled, expired)
//   - switchCycle throughput and latency, the system's hot path
//   - Delivery Plane push-channel traffic
//   - Audit Pipeline dead-lettering
//
// All metrics follow the taxonomy:
// turnsync_business_<subsystem>_<metric_name>_<unit>
//
// Example:
//
//	bm := NewBusinessMetrics("turnsync")
//	bm.SessionsCreatedTotal.WithLabelValues("per_participant").Inc()
//	bm.SwitchDurationSeconds.Observe(0.003)
type BusinessMetrics struct {
	namespace string

	// Sessions subsystem - session lifecycle metrics
	SessionsCreatedTotal   *prometheus.CounterVec // Total sessions created, by sync_mode
	SessionsCompletedTotal *prometheus.CounterVec // Total sessions reaching a terminal status

	// Switches subsystem - switchCycle hot-path metrics
	SwitchesProcessedTotal *prometheus.CounterVec   // Total switchCycle calls, by trigger
	SwitchDurationSeconds  *prometheus.HistogramVec // switchCycle latency, by sync_mode
	ParticipantExpiredTotal prometheus.Counter      // Total participants whose time budget expired

	// Delivery subsystem - Delivery Plane push-channel metrics
	DeliveryMessagesSentTotal *prometheus.CounterVec // Total push-channel messages sent, by message_type
	DeliveryReconnectsTotal   prometheus.Counter     // Total resync requests from reconnecting clients

	// Audit subsystem - Audit Pipeline durability metrics
	AuditJobsRecordedTotal *prometheus.CounterVec // Total audit jobs durably recorded, by event_type
	AuditDeadLetteredTotal prometheus.Counter     // Total audit jobs placed on the dead-letter store
}

// NewBusinessMetrics creates a new BusinessMetrics instance with standard configuration.
//
// Parameters:
//   - namespace: The Prometheus namespace (typically "turnsync")
//
// Returns:
//   - *BusinessMetrics: Initialized business metrics manager
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return &BusinessMetrics{
		namespace: namespace,

		SessionsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_sessions",
				Name:      "created_total",
				Help:      "Total number of sessions created",
			},
			[]string{"sync_mode"}, // sync_mode: per_participant|per_cycle|per_group|global|count_up
		),

		SessionsCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_sessions",
				Name:      "completed_total",
				Help:      "Total number of sessions reaching a terminal status",
			},
			[]string{"status"}, // status: completed|cancelled|expired
		),

		SwitchesProcessedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_switches",
				Name:      "processed_total",
				Help:      "Total number of switchCycle calls processed",
			},
			[]string{"trigger"}, // trigger: explicit|auto_rotate
		),

		SwitchDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "business_switches",
				Name:      "duration_seconds",
				Help:      "Duration of the switchCycle hot path in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"sync_mode"},
		),

		ParticipantExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_switches",
				Name:      "participant_expired_total",
				Help:      "Total number of participants whose time budget expired during a switch",
			},
		),

		DeliveryMessagesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_delivery",
				Name:      "messages_sent_total",
				Help:      "Total number of Delivery Plane push-channel messages sent",
			},
			[]string{"message_type"}, // message_type: state_update|state_sync|session_deleted|pong|error
		),

		DeliveryReconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_delivery",
				Name:      "reconnects_total",
				Help:      "Total number of client-initiated resync requests",
			},
		),

		AuditJobsRecordedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_audit",
				Name:      "jobs_recorded_total",
				Help:      "Total number of audit jobs durably recorded",
			},
			[]string{"event_type"},
		),

		AuditDeadLetteredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "business_audit",
				Name:      "dead_lettered_total",
				Help:      "Total number of audit jobs placed on the dead-letter store",
			},
		),
	}
}

// RecordSessionCreated records a session being created.
func (m *BusinessMetrics) RecordSessionCreated(syncMode string) {
	m.SessionsCreatedTotal.WithLabelValues(syncMode).Inc()
}

// RecordSessionCompleted records a session reaching a terminal status.
func (m *BusinessMetrics) RecordSessionCompleted(status string) {
	m.SessionsCompletedTotal.WithLabelValues(status).Inc()
}

// RecordSwitch records one switchCycle call and its latency.
func (m *BusinessMetrics) RecordSwitch(trigger, syncMode string, duration float64) {
	m.SwitchesProcessedTotal.WithLabelValues(trigger).Inc()
	m.SwitchDurationSeconds.WithLabelValues(syncMode).Observe(duration)
}

// RecordParticipantExpired records a participant's time budget expiring.
func (m *BusinessMetrics) RecordParticipantExpired() {
	m.ParticipantExpiredTotal.Inc()
}

// RecordDeliveryMessageSent records a push-channel message being sent.
func (m *BusinessMetrics) RecordDeliveryMessageSent(messageType string) {
	m.DeliveryMessagesSentTotal.WithLabelValues(messageType).Inc()
}

// RecordDeliveryReconnect records a client-initiated resync request.
func (m *BusinessMetrics) RecordDeliveryReconnect() {
	m.DeliveryReconnectsTotal.Inc()
}

// RecordAuditJobRecorded records an audit job being durably recorded.
func (m *BusinessMetrics) RecordAuditJobRecorded(eventType string) {
	m.AuditJobsRecordedTotal.WithLabelValues(eventType).Inc()
}

// RecordAuditDeadLettered records an audit job being placed on the dead-letter store.
func (m *BusinessMetrics) RecordAuditDeadLettered() {
	m.AuditDeadLetteredTotal.Inc()
}
