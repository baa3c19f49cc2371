package jobs

import (
	"strings"
	"time"
)

// Stage represents the lifecycle position of a conversion job.
type Stage string

const (
	StageDownloading        Stage = "downloading"
	StageTranscribing       Stage = "transcribing"
	StageExtractingKeyframe Stage = "extracting_keyframes"
	StageGenerating         Stage = "generating"
	StageCompleted          Stage = "completed"
	StageError              Stage = "error"
)

// CancelMessage is the error message recorded when a user cancel is honored.
const CancelMessage = "cancelled by user request"

// InterruptedMessage is recorded for jobs found mid-flight on daemon start.
const InterruptedMessage = "interrupted by daemon restart"

var stageOrder = []Stage{
	StageDownloading,
	StageTranscribing,
	StageExtractingKeyframe,
	StageGenerating,
	StageCompleted,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(stageOrder)+1)
	for _, stage := range stageOrder {
		set[stage] = struct{}{}
	}
	set[StageError] = struct{}{}
	return set
}()

// StageOrder returns the successful-run stage sequence.
func StageOrder() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// NextStage returns the stage that follows s in a successful run. The second
// return is false for terminal stages and unknown values.
func NextStage(s Stage) (Stage, bool) {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// IsTerminal reports whether s is a terminal stage.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageError
}

// Label returns the user-facing stage label.
func (s Stage) Label() string {
	switch s {
	case StageDownloading:
		return "Downloading"
	case StageTranscribing:
		return "Transcribing"
	case StageExtractingKeyframe:
		return "Extracting keyframes"
	case StageGenerating:
		return "Generating"
	case StageCompleted:
		return "Completed"
	case StageError:
		return "Error"
	default:
		return string(s)
	}
}

// Job represents one end-to-end conversion request persisted in SQLite.
// The workflow manager owns live Job values; everything else sees snapshots.
type Job struct {
	ID                 int64
	Source             string
	Title              string
	Style              string
	Engine             string
	Strategy           string
	Stage              Stage
	ProgressPercent    float64
	ProgressMessage    string
	ErrorKind          string
	ErrorMessage       string
	Warnings           []string
	OutputDir          string
	AudioPath          string
	VideoPath          string
	Duration           float64
	SubtitleTracksJSON string
	TranscriptJSON     string
	KeyframesJSON      string
	Document           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Snapshot returns a defensive copy safe to hand to subscribers.
func (j *Job) Snapshot() Job {
	cp := *j
	cp.Warnings = append([]string(nil), j.Warnings...)
	return cp
}

// AddWarning records a non-fatal per-item failure on the job.
func (j *Job) AddWarning(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	j.Warnings = append(j.Warnings, message)
}

// SetProgress updates the progress fields together.
func (j *Job) SetProgress(percent float64, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.ProgressPercent = percent
	if message != "" {
		j.ProgressMessage = message
	}
}

// SetFailed marks the job terminally failed with the given kind and message.
func (j *Job) SetFailed(kind, message string) {
	j.Stage = StageError
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.ProgressMessage = message
}

// IsProcessing reports whether the job is in a non-terminal stage.
func (j *Job) IsProcessing() bool {
	return !j.Stage.IsTerminal()
}

// HistoryRecord is one saved result document for a completed job.
type HistoryRecord struct {
	ID        int64
	JobID     int64
	Title     string
	Source    string
	Style     string
	Document  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates job counts by stage.
type Stats struct {
	Total      int
	Processing int
	Completed  int
	Failed     int
	ByStage    map[Stage]int
}
