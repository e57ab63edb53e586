package types

import "time"

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusTimeout    JobStatus = "timeout"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusTimeout, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// VideoRef is one input video as submitted by the caller. Filename is the
// display name used in transcripts and clip orders; Path is where the
// file actually lives.
type VideoRef struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// JobPayload is the caller-supplied request data. Immutable once the job
// exists.
type JobPayload struct {
	Videos          []VideoRef `json:"videos"`
	Text            string     `json:"text,omitempty"`
	CaptionEnabled  bool       `json:"captionEnabled,omitempty"`
	TransferEnabled bool       `json:"transferEnabled,omitempty"`
}

// Job is one end-to-end request to process a set of videos into a
// highlight reel.
type Job struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	Payload     JobPayload        `json:"payload"`
	OutputDir   string            `json:"outputDir"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Error       string            `json:"error,omitempty"`
	Progress    map[string]string `json:"progress,omitempty"`
}

// Sentence is one transcribed utterance with second offsets into its
// source audio.
type Sentence struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Text     string  `json:"text"`
}

// ClipRange selects a time span of a named source video. The order of a
// []ClipRange is meaningful end to end: it is the playback order of the
// final reel and must never be resorted.
type ClipRange struct {
	Video    string  `json:"video"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// EventType classifies push notifications on a job's stream.
type EventType string

const (
	EventStart     EventType = "start"
	EventProgress  EventType = "progress"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
	EventComplete  EventType = "complete"
)

// Notification is one push message on a job's stream. Exactly one
// terminal-typed notification (complete, cancelled, or error for both
// error and timeout outcomes) is delivered per job.
type Notification struct {
	Type    EventType         `json:"type"`
	JobID   string            `json:"taskId"`
	Message string            `json:"message"`
	Extras  map[string]string `json:"extras,omitempty"`
}
