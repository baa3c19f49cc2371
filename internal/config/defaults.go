package config

const (
	defaultDataDir            = "~/.local/share/clipnote/data"
	defaultOutputDir          = "~/.local/share/clipnote/output"
	defaultLogDir             = "~/.local/share/clipnote/logs"
	defaultModelDir           = "~/.local/share/clipnote/models"
	defaultAPIBind            = "127.0.0.1:7511"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultMaxConcurrentJobs  = 2
	defaultDownloadWeight     = 15
	defaultTranscribeWeight   = 35
	defaultKeyframeWeight     = 30
	defaultGenerateWeight     = 20
	defaultYtdlpBinary        = "yt-dlp"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultDownloadTimeout    = 1800
	defaultSubtitleTimeout    = 20
	defaultEngine             = "local"
	defaultWhisperBinary      = "whisper-cli"
	defaultWhisperModel       = "base"
	defaultModelDownloadURL   = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultCloudModel         = "gemini-2.5-flash"
	defaultASRTimeoutSeconds  = 900
	defaultStrategy           = "uniform"
	defaultTargetFrames       = 8
	defaultMaxFrames          = 20
	defaultMinInterval        = 5.0
	defaultSampleInterval     = 10.0
	defaultSemanticWeight     = 0.6
	defaultVisualWeight       = 0.4
	defaultWebsocketURL       = "ws://127.0.0.1:9222/devtools/browser"
	defaultConnectAttempts    = 10
	defaultConnectDelayMillis = 250
	defaultCaptureTimeout     = 30
	defaultLLMModel           = "gemini-2.5-flash"
	defaultLLMTimeoutSeconds  = 120
	defaultNtfyTimeout        = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Workflow: Workflow{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			DownloadWeight:    defaultDownloadWeight,
			TranscribeWeight:  defaultTranscribeWeight,
			KeyframeWeight:    defaultKeyframeWeight,
			GenerateWeight:    defaultGenerateWeight,
		},
		Media: Media{
			YtdlpBinary:     defaultYtdlpBinary,
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Subtitles: Subtitles{
			Enabled:        true,
			RequestTimeout: defaultSubtitleTimeout,
		},
		Transcription: Transcription{
			Engine:           defaultEngine,
			WhisperBinary:    defaultWhisperBinary,
			WhisperModel:     defaultWhisperModel,
			ModelDir:         defaultModelDir,
			ModelDownloadURL: defaultModelDownloadURL,
			CloudModel:       defaultCloudModel,
			TimeoutSeconds:   defaultASRTimeoutSeconds,
		},
		Keyframes: Keyframes{
			Strategy:            defaultStrategy,
			TargetFrames:        defaultTargetFrames,
			MaxFrames:           defaultMaxFrames,
			MinIntervalSeconds:  defaultMinInterval,
			SampleIntervalSecs:  defaultSampleInterval,
			SemanticScoreWeight: defaultSemanticWeight,
			VisualScoreWeight:   defaultVisualWeight,
		},
		Browser: Browser{
			WebsocketURL:          defaultWebsocketURL,
			ConnectAttempts:       defaultConnectAttempts,
			ConnectDelayMillis:    defaultConnectDelayMillis,
			CaptureTimeoutSeconds: defaultCaptureTimeout,
		},
		LLM: LLM{
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
