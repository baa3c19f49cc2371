package api

import (
	"time"

	"clipnote/internal/jobs"
	"clipnote/internal/progress"
	"clipnote/internal/stage"
	"clipnote/internal/subtitles"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	Source   string            `json:"source"`
	Style    string            `json:"style,omitempty"`
	Engine   string            `json:"engine,omitempty"`
	Strategy string            `json:"strategy,omitempty"`
	Tracks   []subtitles.Track `json:"tracks,omitempty"`
}

// JobProgress captures stage progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Job describes a conversion job in a transport-friendly format.
type Job struct {
	ID           int64       `json:"id"`
	Source       string      `json:"source"`
	Title        string      `json:"title,omitempty"`
	Style        string      `json:"style"`
	Engine       string      `json:"engine,omitempty"`
	Strategy     string      `json:"strategy,omitempty"`
	Progress     JobProgress `json:"progress"`
	ErrorKind    string      `json:"errorKind,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
	OutputDir    string      `json:"outputDir,omitempty"`
	Document     string      `json:"document,omitempty"`
	CreatedAt    string      `json:"createdAt,omitempty"`
	UpdatedAt    string      `json:"updatedAt,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// Event mirrors one progress bus event.
type Event struct {
	Sequence  uint64  `json:"seq"`
	Timestamp string  `json:"ts"`
	JobID     int64   `json:"jobId"`
	Stage     string  `json:"stage"`
	Percent   float64 `json:"percent"`
	Message   string  `json:"message,omitempty"`
	ErrorKind string  `json:"errorKind,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	st, ok := jobs.ParseStage(e.Stage)
	return ok && st.IsTerminal()
}

// EventsResponse carries a page of progress events plus the resume cursor.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DBPath       string             `json:"dbPath"`
	LockFilePath string             `json:"lockFilePath"`
	JobStats     map[string]int     `json:"jobStats"`
	StageHealth  []StageHealth      `json:"stageHealth"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HistoryRecord describes one archived document.
type HistoryRecord struct {
	ID        int64  `json:"id"`
	JobID     int64  `json:"jobId"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Style     string `json:"style"`
	Document  string `json:"document,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// HistoryListResponse wraps history records.
type HistoryListResponse struct {
	Records []HistoryRecord `json:"records"`
}

// CountResponse reports how many rows a maintenance action touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// RetryRequest is the body of POST /api/jobs/retry.
type RetryRequest struct {
	IDs []int64 `json:"ids,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// FromJob converts a persisted job into its API shape.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:       job.ID,
		Source:   job.Source,
		Title:    job.Title,
		Style:    job.Style,
		Engine:   job.Engine,
		Strategy: job.Strategy,
		Progress: JobProgress{
			Stage:   string(job.Stage),
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		Warnings:     append([]string(nil), job.Warnings...),
		OutputDir:    job.OutputDir,
		Document:     job.Document,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a job list.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromEvent converts a progress bus event.
func FromEvent(evt progress.Event) Event {
	return Event{
		Sequence:  evt.Sequence,
		Timestamp: formatTime(evt.Timestamp),
		JobID:     evt.JobID,
		Stage:     string(evt.Stage),
		Percent:   evt.Percent,
		Message:   evt.Message,
		ErrorKind: evt.ErrorKind,
		Error:     evt.Error,
	}
}

// FromEvents converts a page of progress bus events.
func FromEvents(events []progress.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, evt := range events {
		out = append(out, FromEvent(evt))
	}
	return out
}

// FromHealth converts stage health reports.
func FromHealth(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromHistory converts a history record.
func FromHistory(record *jobs.HistoryRecord) HistoryRecord {
	if record == nil {
		return HistoryRecord{}
	}
	return HistoryRecord{
		ID:        record.ID,
		JobID:     record.JobID,
		Title:     record.Title,
		Source:    record.Source,
		Style:     record.Style,
		Document:  record.Document,
		CreatedAt: formatTime(record.CreatedAt),
		UpdatedAt: formatTime(record.UpdatedAt),
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}
