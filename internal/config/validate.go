package config

import (
	"errors"
	"fmt"
	"strings"
)

// Recognized transcription engines.
const (
	EngineLocal = "local"
	EngineCloud = "cloud"
)

// Recognized keyframe strategies.
const (
	StrategyUniform  = "uniform"
	StrategyKeyword  = "keyword"
	StrategySemantic = "semantic"
	StrategyVisual   = "visual"
	StrategyHybrid   = "hybrid"
)

var validEngines = map[string]struct{}{
	EngineLocal: {},
	EngineCloud: {},
}

var validStrategies = map[string]struct{}{
	StrategyUniform:  {},
	StrategyKeyword:  {},
	StrategySemantic: {},
	StrategyVisual:   {},
	StrategyHybrid:   {},
}

// ValidEngine reports whether the engine name is recognized.
func ValidEngine(engine string) bool {
	_, ok := validEngines[strings.ToLower(strings.TrimSpace(engine))]
	return ok
}

// ValidStrategy reports whether the keyframe strategy name is recognized.
func ValidStrategy(strategy string) bool {
	_, ok := validStrategies[strings.ToLower(strings.TrimSpace(strategy))]
	return ok
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		problems = append(problems, "paths.output_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}

	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	c.normalizeWeights()

	engine := strings.ToLower(strings.TrimSpace(c.Transcription.Engine))
	if _, ok := validEngines[engine]; !ok {
		problems = append(problems, fmt.Sprintf("transcription.engine %q is not one of local, cloud", c.Transcription.Engine))
	} else {
		c.Transcription.Engine = engine
	}

	strategy := strings.ToLower(strings.TrimSpace(c.Keyframes.Strategy))
	if _, ok := validStrategies[strategy]; !ok {
		problems = append(problems, fmt.Sprintf("keyframes.strategy %q is not a known strategy", c.Keyframes.Strategy))
	} else {
		c.Keyframes.Strategy = strategy
	}

	if c.Keyframes.TargetFrames <= 0 {
		c.Keyframes.TargetFrames = defaultTargetFrames
	}
	if c.Keyframes.MaxFrames <= 0 {
		c.Keyframes.MaxFrames = defaultMaxFrames
	}
	if c.Keyframes.MaxFrames < c.Keyframes.TargetFrames {
		c.Keyframes.MaxFrames = c.Keyframes.TargetFrames
	}
	if c.Keyframes.MinIntervalSeconds <= 0 {
		c.Keyframes.MinIntervalSeconds = defaultMinInterval
	}
	if c.Keyframes.SampleIntervalSecs <= 0 {
		c.Keyframes.SampleIntervalSecs = defaultSampleInterval
	}

	if c.Browser.ConnectAttempts <= 0 {
		c.Browser.ConnectAttempts = defaultConnectAttempts
	}
	if c.Browser.ConnectDelayMillis <= 0 {
		c.Browser.ConnectDelayMillis = defaultConnectDelayMillis
	}
	if c.Browser.CaptureTimeoutSeconds <= 0 {
		c.Browser.CaptureTimeoutSeconds = defaultCaptureTimeout
	}

	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// normalizeWeights resets the stage weights to defaults when they do not form
// a usable distribution. Small drift from 100 is tolerated; zero or negative
// weights are not.
func (c *Config) normalizeWeights() {
	w := &c.Workflow
	if w.DownloadWeight <= 0 || w.TranscribeWeight <= 0 || w.KeyframeWeight <= 0 || w.GenerateWeight <= 0 {
		w.DownloadWeight = defaultDownloadWeight
		w.TranscribeWeight = defaultTranscribeWeight
		w.KeyframeWeight = defaultKeyframeWeight
		w.GenerateWeight = defaultGenerateWeight
		return
	}
	sum := w.DownloadWeight + w.TranscribeWeight + w.KeyframeWeight + w.GenerateWeight
	if sum < 90 || sum > 110 {
		w.DownloadWeight = defaultDownloadWeight
		w.TranscribeWeight = defaultTranscribeWeight
		w.KeyframeWeight = defaultKeyframeWeight
		w.GenerateWeight = defaultGenerateWeight
	}
}
