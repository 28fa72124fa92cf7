package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vly-payment-engine/internal/domain/payment"
	"github.com/vly-payment-engine/internal/domain/shared"
)

var (
	ErrEmptyTargetURL     = errors.New("notification target URL cannot be empty")
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
)

// Job is one queued webhook delivery. Retries are tracked as data: AttemptCount
// grows on each failed POST and the job leaves the queue once it is delivered
// or AttemptCount reaches MaxAttempts.
type Job struct {
	ID            int64                     `json:"id"`
	PaymentID     uuid.UUID                 `json:"payment_id"`
	MerchantID    uuid.UUID                 `json:"merchant_id"`
	Event         shared.EventType          `json:"event"`
	TargetURL     string                    `json:"target_url"`
	Payload       json.RawMessage           `json:"payload"`
	Signature     string                    `json:"signature,omitempty"`
	Status        shared.NotificationStatus `json:"status"`
	AttemptCount  int                       `json:"attempt_count"`
	MaxAttempts   int                       `json:"max_attempts"`
	LastError     string                    `json:"last_error,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	LastAttemptAt *time.Time                `json:"last_attempt_at,omitempty"`
}

// NewJob snapshots the request for the event into a pending job
func NewJob(event shared.EventType, req *payment.Request, targetURL string, maxAttempts int, now time.Time) (*Job, error) {
	if targetURL == "" {
		return nil, ErrEmptyTargetURL
	}
	if maxAttempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}

	payload, err := NewPayload(event, req, now).Canonical()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload for payment %s: %w", event, req.ID, err)
	}

	return &Job{
		PaymentID:   req.ID,
		MerchantID:  req.MerchantID,
		Event:       event,
		TargetURL:   targetURL,
		Payload:     payload,
		Status:      shared.NotificationStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now.UTC(),
	}, nil
}

// RecordFailure counts a failed delivery attempt
func (j *Job) RecordFailure(cause error, now time.Time) {
	j.AttemptCount++
	if cause != nil {
		j.LastError = cause.Error()
	}
	t := now.UTC()
	j.LastAttemptAt = &t
}

// Exhausted reports whether the retry budget is spent
func (j *Job) Exhausted() bool {
	return j.AttemptCount >= j.MaxAttempts
}

func (j *Job) MarkDelivered(now time.Time) {
	j.Status = shared.NotificationStatusDelivered
	t := now.UTC()
	j.LastAttemptAt = &t
}

func (j *Job) MarkFailed(now time.Time) {
	j.Status = shared.NotificationStatusFailed
	t := now.UTC()
	j.LastAttemptAt = &t
}

// Clone returns a deep copy
func (j *Job) Clone() *Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.LastAttemptAt != nil {
		t := *j.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return &c
}

// GetPayload decodes the snapshot carried by the job
func (j *Job) GetPayload() (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
