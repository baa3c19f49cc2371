package config

import "time"

// DownloadTimeout returns the media download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return seconds(c.Media.DownloadTimeout)
}

// SubtitleRequestTimeout returns the per-track subtitle fetch timeout.
func (c *Config) SubtitleRequestTimeout() time.Duration {
	return seconds(c.Subtitles.RequestTimeout)
}

// TranscriptionTimeout returns the ASR run timeout.
func (c *Config) TranscriptionTimeout() time.Duration {
	return seconds(c.Transcription.TimeoutSeconds)
}

// CaptureTimeout returns the per-capture browser timeout.
func (c *Config) CaptureTimeout() time.Duration {
	return seconds(c.Browser.CaptureTimeoutSeconds)
}

// ConnectDelay returns the pause between browser connection attempts.
func (c *Config) ConnectDelay() time.Duration {
	if c.Browser.ConnectDelayMillis <= 0 {
		return 0
	}
	return time.Duration(c.Browser.ConnectDelayMillis) * time.Millisecond
}

// LLMTimeout returns the document synthesis request timeout.
func (c *Config) LLMTimeout() time.Duration {
	return seconds(c.LLM.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
