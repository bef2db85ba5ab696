package scheduler

// Status is the lifecycle phase of a MessageState.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusSuccess           Status = "SUCCESS"
	StatusFailedMaxRetries  Status = "FAILED_MAX_RETRIES"
)

// MaxAttempts bounds how many times a message may be sent before it is
// given up on.
const MaxAttempts = 6

// RetrySchedule holds the delay, in seconds from arrival, before the attempt
// indexed by the message's attempt_count. RetrySchedule[0] is consumed by
// the intake-time first attempt; RetrySchedule[attempt_count] after a
// failed attempt yields the delay until the next one.
var RetrySchedule = [MaxAttempts]float64{0.0, 0.5, 2, 4, 8, 16}

// Message is the immutable caller-supplied payload.
type Message struct {
	MessageID string                 `json:"message_id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MessageState is the mutable tracking record for one in-flight message.
type MessageState struct {
	MessageID    string  `json:"message_id"`
	Message      Message `json:"message"`
	AttemptCount int     `json:"attempt_count"`
	NextRetryAt  float64 `json:"next_retry_at"`
	Status       Status  `json:"status"`
	CreatedAt    float64 `json:"created_at"`
	UpdatedAt    float64 `json:"updated_at"`
}

// IsDue reports whether the state is PENDING and due for an attempt at now.
func (s *MessageState) IsDue(now float64) bool {
	return s.Status == StatusPending && s.NextRetryAt <= now
}

// Clone returns a deep-enough copy for safe handoff across the lock boundary
// (callers outside the core must never mutate a live MessageState in place).
func (s MessageState) Clone() MessageState {
	clone := s
	if s.Message.Metadata != nil {
		clone.Message.Metadata = make(map[string]interface{}, len(s.Message.Metadata))
		for k, v := range s.Message.Metadata {
			clone.Message.Metadata[k] = v
		}
	}
	return clone
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	TotalMessages     int64 `json:"total_messages"`
	TotalSuccess      int64 `json:"total_success"`
	TotalFailed       int64 `json:"total_failed"`
	InProgress        int64 `json:"in_progress"`
	PersistenceErrors int64 `json:"persistence_errors"`
}
