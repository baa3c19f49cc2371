package services

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies pipeline failures for status reporting and the API.
type Kind string

const (
	KindSourceInvalid        Kind = "source_invalid"
	KindDownloadFailed       Kind = "download_failed"
	KindTranscriptionFailed  Kind = "transcription_failed"
	KindConnectorUnavailable Kind = "connector_unavailable"
	KindCaptureFailed        Kind = "capture_failed"
	KindGenerationFailed     Kind = "generation_failed"
	KindCancelled            Kind = "cancelled"
	KindInternal             Kind = "internal"
)

var (
	ErrSourceInvalid        = errors.New("source invalid")
	ErrDownloadFailed       = errors.New("download failed")
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrConnectorUnavailable = errors.New("connector unavailable")
	ErrCaptureFailed        = errors.New("capture failed")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrCancelled            = errors.New("cancelled")
)

var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrSourceInvalid, KindSourceInvalid},
	{ErrDownloadFailed, KindDownloadFailed},
	{ErrTranscriptionFailed, KindTranscriptionFailed},
	{ErrConnectorUnavailable, KindConnectorUnavailable},
	{ErrCaptureFailed, KindCaptureFailed},
	{ErrGenerationFailed, KindGenerationFailed},
	{ErrCancelled, KindCancelled},
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails carries the classified view of a stage error.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details classifies an error by its sentinel marker and extracts the
// human-readable message (the text after the marker prefix).
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindInternal}
	}
	details := ErrorDetails{Kind: KindInternal, Message: err.Error(), Cause: err}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			details.Kind = mk.kind
			details.Message = strings.TrimSpace(strings.TrimPrefix(err.Error(), mk.marker.Error()+":"))
			break
		}
	}
	if details.Message == "" {
		details.Message = err.Error()
	}
	return details
}

// KindOf returns just the classified kind for an error.
func KindOf(err error) Kind {
	return Details(err).Kind
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
