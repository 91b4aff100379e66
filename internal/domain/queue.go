package domain

import "time"

// QueueEntry wraps a payload waiting for delivery. Only Attempts ever changes
// after enqueue.
type QueueEntry[T any] struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Payload        T         `json:"payload"`
	Attempts       int       `json:"attempts"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type SOSPayload struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Message     string    `json:"message"`
	ZoneID      ZoneID    `json:"zone_id,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
}

type SMSPayload struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

type DrainFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Success []string       `json:"success"`
	Failed  []DrainFailure `json:"failed"`
	// Aborted is set when a connectivity failure stopped the pass early.
	Aborted bool `json:"aborted"`
	// Remaining is the queue length persisted after the pass.
	Remaining int `json:"remaining"`
}
