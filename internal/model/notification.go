package model

import "time"

// Wire payloads published on the notification bus. Field names are fixed:
// the owning system consumes these verbatim.

// ProgressMessage announces a progress step for a job.
type ProgressMessage struct {
	JobID     string    `json:"jobId"`
	Progress  int       `json:"progress"`
	Stage     Stage     `json:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultMessage is the single success terminal message for a job. It is
// published only after the durable result write has completed.
type ResultMessage struct {
	JobID          string    `json:"jobId"`
	ResultLocation string    `json:"resultLocation"`
	Timestamp      time.Time `json:"timestamp"`
}

// FailureMessage is the single failure terminal message for a job.
type FailureMessage struct {
	JobID        string    `json:"jobId"`
	ErrorCode    string    `json:"errorCode"`
	ErrorMessage string    `json:"errorMessage"`
	Timestamp    time.Time `json:"timestamp"`
}
