package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType identifies the kind of background task
type JobType string

const (
	JobTypeActivateSubscription JobType = "subscription_activate"
	JobTypeRecordHistory        JobType = "payment_history"
	JobTypeNotifyUser           JobType = "user_notify"
	JobTypeRecoverySweep        JobType = "payment_recovery_sweep"
)

// JobStatus represents the state of a job in the queue
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is the unit of work stored in Redis
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ActivationPayload carries the data for a subscription activation job
type ActivationPayload struct {
	PaymentID string `json:"payment_id"`
}

// HistoryPayload carries the data for a payment history job
type HistoryPayload struct {
	PaymentID string `json:"payment_id"`
	UserID    uint   `json:"user_id"`
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	State     string `json:"state"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// NotifyPayload carries the data for a user notification job
type NotifyPayload struct {
	PaymentID string `json:"payment_id"`
	UserID    uint   `json:"user_id"`
	Status    string `json:"status"`
}

// SweepPayload carries the data for a recovery sweep job
type SweepPayload struct {
	OlderThanMinutes int `json:"older_than_minutes"`
	Limit            int `json:"limit"`
}

func (p ActivationPayload) ToMap() map[string]interface{} { return payloadToMap(p) }
func (p HistoryPayload) ToMap() map[string]interface{}    { return payloadToMap(p) }
func (p NotifyPayload) ToMap() map[string]interface{}     { return payloadToMap(p) }
func (p SweepPayload) ToMap() map[string]interface{}      { return payloadToMap(p) }

func (p *ActivationPayload) FromMap(m map[string]interface{}) error { return payloadFromMap(m, p) }
func (p *HistoryPayload) FromMap(m map[string]interface{}) error    { return payloadFromMap(m, p) }
func (p *NotifyPayload) FromMap(m map[string]interface{}) error     { return payloadFromMap(m, p) }
func (p *SweepPayload) FromMap(m map[string]interface{}) error      { return payloadFromMap(m, p) }

func payloadToMap(p interface{}) map[string]interface{} {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func payloadFromMap(m map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
