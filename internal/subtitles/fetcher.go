package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"clipnote/internal/config"
	"clipnote/internal/language"
	"clipnote/internal/logging"
	"clipnote/internal/textutil"
	"clipnote/internal/transcript"
)

// Track identifies one provider subtitle track to fetch.
type Track struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
}

// Cue is one timed subtitle line. Times are seconds.
type Cue struct {
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	Content string  `json:"content"`
}

// Result is a successfully fetched and converted track.
type Result struct {
	Track Track  `json:"track"`
	Cues  []Cue  `json:"cues"`
	Path  string `json:"path,omitempty"`
}

// DecodeTracks parses the track list stored on a job record.
func DecodeTracks(raw string) ([]Track, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var tracks []Track
	if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
		return nil, fmt.Errorf("decode subtitle tracks: %w", err)
	}
	return tracks, nil
}

// EncodeTracks serializes a track list for storage on a job record.
func EncodeTracks(tracks []Track) (string, error) {
	if len(tracks) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(tracks)
	if err != nil {
		return "", fmt.Errorf("encode subtitle tracks: %w", err)
	}
	return string(encoded), nil
}

// providerPayload matches the provider's subtitle JSON document.
type providerPayload struct {
	Body []Cue `json:"body"`
}

// Fetcher downloads provider subtitle tracks concurrently. Individual track
// failures are absorbed and reported as warnings; FetchAll always returns the
// tracks that succeeded.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher constructs a Fetcher from configuration.
func NewFetcher(cfg *config.Config, logger *slog.Logger) *Fetcher {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "subtitles"))
	}
	timeout := cfg.SubtitleRequestTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// FetchAll fetches every track concurrently and writes one SRT artifact per
// successful track under outDir. It never returns an error: tracks that fail
// are dropped from the result set and described in the warnings slice.
// Results preserve the input track order.
func (f *Fetcher) FetchAll(ctx context.Context, tracks []Track, outDir string) ([]Result, []string) {
	if len(tracks) == 0 {
		return nil, nil
	}

	type outcome struct {
		index  int
		result Result
		err    error
	}

	outcomes := make([]outcome, len(tracks))
	var wg sync.WaitGroup
	for i, track := range tracks {
		wg.Add(1)
		go func(i int, track Track) {
			defer wg.Done()
			result, err := f.fetchOne(ctx, track, outDir)
			outcomes[i] = outcome{index: i, result: result, err: err}
		}(i, track)
	}
	wg.Wait()

	var results []Result
	var warnings []string
	for _, oc := range outcomes {
		if oc.err != nil {
			label := oc.result.Track.Title
			if label == "" {
				label = tracks[oc.index].Title
			}
			warning := fmt.Sprintf("subtitle track %q skipped: %v", label, oc.err)
			warnings = append(warnings, warning)
			if f.logger != nil {
				f.logger.Warn("subtitle track fetch failed",
					logging.String("track", label),
					logging.Error(oc.err))
			}
			continue
		}
		results = append(results, oc.result)
	}
	return results, warnings
}

func (f *Fetcher) fetchOne(ctx context.Context, track Track, outDir string) (Result, error) {
	result := Result{Track: track}
	url := strings.TrimSpace(track.URL)
	if url == "" {
		return result, fmt.Errorf("empty track url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return result, fmt.Errorf("read body: %w", err)
	}

	cues, err := ParseProviderJSON(body)
	if err != nil {
		return result, err
	}
	result.Cues = cues

	if outDir != "" {
		path, err := writeTrackArtifact(outDir, track, cues)
		if err != nil {
			return result, err
		}
		result.Path = path
	}
	return result, nil
}

// ParseProviderJSON converts the provider's timing document into cues sorted
// by start time, dropping entries without content.
func ParseProviderJSON(data []byte) ([]Cue, error) {
	var payload providerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse provider json: %w", err)
	}
	if len(payload.Body) == 0 {
		return nil, fmt.Errorf("provider json has no cues")
	}

	cues := make([]Cue, 0, len(payload.Body))
	for _, cue := range payload.Body {
		cue.Content = strings.TrimSpace(cue.Content)
		if cue.Content == "" {
			continue
		}
		if cue.To < cue.From {
			cue.To = cue.From
		}
		cues = append(cues, cue)
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("provider json has no usable cues")
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].From < cues[j].From })
	return cues, nil
}

func writeTrackArtifact(outDir string, track Track, cues []Cue) (string, error) {
	name := textutil.SanitizeToken(track.Title)
	if track.Language != "" {
		code := language.ToISO2(track.Language)
		if code == "" {
			code = textutil.SanitizeToken(track.Language)
		}
		name = name + "." + code
	}
	path := filepath.Join(outDir, name+".srt")

	tr := &transcript.Transcript{Segments: make([]transcript.Segment, 0, len(cues))}
	for _, cue := range cues {
		tr.Segments = append(tr.Segments, transcript.Segment{Start: cue.From, End: cue.To, Text: cue.Content})
	}
	if err := os.WriteFile(path, []byte(tr.RenderSRT()), 0o644); err != nil {
		return "", fmt.Errorf("write track artifact: %w", err)
	}
	return path, nil
}
