package keyframes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keyframe is one selected frame with its transcript caption.
type Keyframe struct {
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"path"`
	Caption   string  `json:"caption,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Strategy  string  `json:"strategy,omitempty"`
}

// Marshal encodes a keyframe sequence for storage on the job record.
func Marshal(frames []Keyframe) (string, error) {
	payload, err := json.Marshal(frames)
	if err != nil {
		return "", fmt.Errorf("encode keyframes: %w", err)
	}
	return string(payload), nil
}

// Unmarshal decodes a keyframe sequence stored on a job record.
func Unmarshal(raw string) ([]Keyframe, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var frames []Keyframe
	if err := json.Unmarshal([]byte(raw), &frames); err != nil {
		return nil, fmt.Errorf("decode keyframes: %w", err)
	}
	return frames, nil
}

// candidate is a scored capture position under consideration.
type candidate struct {
	Timestamp float64
	Score     float64
}
