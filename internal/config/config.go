package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the service reads from the environment.
// Policy constants (batch size, retries, chunk ceiling) live here rather
// than in code.
type Config struct {
	Port      string
	DataDir   string
	DBPath    string
	UploadDir string
	AudioDir  string

	FFmpegPath  string
	FFprobePath string

	TranscribeURL      string
	TranscribeModel    string
	TranscribeLanguage string
	ExplainURL         string
	ExplainModel       string
	OpenAIAPIKey       string

	ExplainBatchSize int
	MaxRetries       int
	RetryBackoff     time.Duration
	BackoffFactor    float64
	MaxChunkBytes    int64
	AudioBytesPerSec float64

	WorkerPollInterval time.Duration
	HTTPTimeout        time.Duration
}

// Load reads configuration from the environment with defaults suitable
// for local development.
func Load() *Config {
	dataDir := getenv("DATA_DIR", "./data")
	return &Config{
		Port:      getenv("PORT", "8080"),
		DataDir:   dataDir,
		DBPath:    getenv("DB_PATH", dataDir+"/luisterlab.db"),
		UploadDir: getenv("UPLOAD_DIR", dataDir+"/uploads"),
		AudioDir:  getenv("AUDIO_DIR", dataDir+"/audio"),

		FFmpegPath:  getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenv("FFPROBE_PATH", "ffprobe"),

		TranscribeURL:      getenv("TRANSCRIBE_URL", "https://api.openai.com/v1"),
		TranscribeModel:    getenv("TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeLanguage: getenv("TRANSCRIBE_LANGUAGE", "nl"),
		ExplainURL:         getenv("EXPLAIN_URL", "https://api.openai.com/v1"),
		ExplainModel:       getenv("EXPLAIN_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),

		ExplainBatchSize: getint("EXPLAIN_BATCH_SIZE", 5),
		MaxRetries:       getint("MAX_RETRIES", 3),
		RetryBackoff:     getduration("RETRY_BACKOFF", time.Second),
		BackoffFactor:    getfloat("BACKOFF_FACTOR", 5),
		MaxChunkBytes:    int64(getint("MAX_CHUNK_BYTES", 20*1024*1024)),
		AudioBytesPerSec: getfloat("AUDIO_BYTES_PER_SEC", 16000),

		WorkerPollInterval: getduration("WORKER_POLL_INTERVAL", time.Second),
		HTTPTimeout:        getduration("HTTP_TIMEOUT", 2*time.Minute),
	}
}

// EnsureDirs creates the data directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.UploadDir, c.AudioDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
