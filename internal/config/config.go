package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the service reads from the environment.
// Secrets are never hardcoded; a missing key disables the feature that
// needs it (the ASR and analyzer adapters report it at call time).
type Config struct {
	Mode     string
	HTTPAddr string
	WSAddr   string

	// DataDir is the root for everything the service writes. MediaDir
	// receives uploads; job output lives under OutputDir/<jobID>.
	DataDir   string
	MediaDir  string
	OutputDir string

	MaxConcurrentJobs int
	JobTimeout        time.Duration

	PersistEnabled  bool
	DBPath          string
	RetentionWindow time.Duration
	CleanupInterval time.Duration

	FFmpegPath  string
	FFprobePath string

	ASRBaseURL      string
	ASRAppKey       string
	ASRPollInterval time.Duration
	ASRMaxPollTries int

	LLMAPIKey       string
	LLMBaseURL      string
	LLMAllowedHosts []string
	LLMModel        string
	LLMSystemPrompt string

	// Clip shaping knobs. OverlapDedupe is the heuristic threshold above
	// which two analyzer segments of the same video count as duplicates
	// (fraction of the shorter segment covered by the overlap).
	ClipAdjacentGap time.Duration
	ClipEndPadding  time.Duration
	OverlapDedupe   float64

	VideoExts []string
}

var defaultVideoExts = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".flv", ".webm", ".m4v"}

// Load reads the configuration from the environment, applying defaults
// that match a small local deployment.
func Load() Config {
	dataDir := getenv("HIGHLIGHTD_DATA_DIR", "data")
	return Config{
		Mode:     getenv("HIGHLIGHTD_MODE", "dev"),
		HTTPAddr: getenv("HIGHLIGHTD_HTTP_ADDR", ":8001"),
		WSAddr:   getenv("HIGHLIGHTD_WS_ADDR", ":8000"),

		DataDir:   dataDir,
		MediaDir:  getenv("HIGHLIGHTD_MEDIA_DIR", filepath.Join(dataDir, "mediasource")),
		OutputDir: getenv("HIGHLIGHTD_OUTPUT_DIR", filepath.Join(dataDir, "output")),

		MaxConcurrentJobs: getenvInt("MAX_CONCURRENT_JOBS", 3),
		JobTimeout:        getenvSeconds("JOB_TIMEOUT", 600),

		PersistEnabled:  getenvBool("PERSISTENCE_ENABLED", true),
		DBPath:          getenv("PERSISTENCE_DB_PATH", filepath.Join(dataDir, "jobs.db")),
		RetentionWindow: getenvDays("RETENTION_DAYS", 7),
		CleanupInterval: getenvSeconds("CLEANUP_INTERVAL", 3600),

		FFmpegPath:  getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenv("FFPROBE_PATH", "ffprobe"),

		ASRBaseURL:      getenv("ASR_BASE_URL", ""),
		ASRAppKey:       getenv("ASR_APP_KEY", ""),
		ASRPollInterval: getenvSeconds("ASR_POLL_INTERVAL", 10),
		ASRMaxPollTries: getenvInt("ASR_MAX_POLL_RETRIES", 180),

		LLMAPIKey:       getenv("AI_API_KEY", ""),
		LLMBaseURL:      getenv("AI_BASE_URL", ""),
		LLMAllowedHosts: getenvCSV("AI_ALLOWED_HOSTS", nil),
		LLMModel:        getenv("AI_MODEL", "deepseek-chat"),
		LLMSystemPrompt: getenv("AI_SYSTEM_PROMPT", ""),

		ClipAdjacentGap: getenvSeconds("CLIP_ADJACENT_GAP", 2),
		ClipEndPadding:  getenvSeconds("CLIP_END_PADDING", 1),
		OverlapDedupe:   getenvFloat("CLIP_OVERLAP_DEDUPE", 0.8),

		VideoExts: getenvCSV("EXTRA_VIDEO_FORMATS", nil),
	}
}

// SupportedExt reports whether name has a recognized video extension,
// including any extras configured via EXTRA_VIDEO_FORMATS.
func (c Config) SupportedExt(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".part") {
		return false
	}
	for _, ext := range defaultVideoExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, ext := range c.VideoExts {
		if ext != "" && strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getenvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getenvInt(key, fallback)) * time.Second
}

func getenvDays(key string, fallback int) time.Duration {
	return time.Duration(getenvInt(key, fallback)) * 24 * time.Hour
}

func getenvCSV(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
