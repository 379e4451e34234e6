// Package config loads server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Detector variants.
const (
	DetectorLocal  = "local"
	DetectorRemote = "remote"
)

// OCR engine variants.
const (
	OCRTesseract = "tesseract"
	OCRVision    = "vision"
	OCRGemini    = "gemini"
)

// Config holds every tunable of the recognition server.
type Config struct {
	Port string

	// Detection
	Detector          string        // "local" or "remote"
	DetectorModelPath string        // ONNX model for the local detector
	DetectorInputSize int           // model input resolution
	RemoteURL         string        // e.g. "https://detect.roboflow.com"
	RemoteModel       string        // e.g. "license-plate-recognition-rxg4e/4"
	RemoteAPIKey      string        // API key for the detection service
	RemoteTimeout     time.Duration // per-request HTTP timeout
	RemoteRPM         int           // requests per minute, 0 = unlimited
	DetectWorkers     int           // size of the detection I/O pool

	// OCR
	OCREngine      string
	OCRLanguage    string
	ThreadFraction float64
	BatchSize      int
	QueueDepth     int

	// Per-invocation defaults
	ConfidenceThreshold float64
	OverlapThreshold    float64
	MaxDimension        int
	DropThreshold       float64
	CropPadding         float64

	// Resources
	MaxConcurrentRequests int
	AdmissionPolicy       string
	AdmissionWait         time.Duration
	RequestTimeout        time.Duration
	ReclaimMemory         bool

	// Debug
	DebugMode bool
	DebugDir  string

	// Result cache
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	ResultCacheTTL time.Duration
}

// Load reads an optional .env file and then the process environment.
// Unparsable values are reported as errors rather than silently defaulted.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Port: getEnv("PORT", "8080"),

		Detector:          strings.ToLower(getEnv("DETECTOR", DetectorRemote)),
		DetectorModelPath: getEnv("DETECTOR_MODEL_PATH", "models/plate_yolov8n.onnx"),
		DetectorInputSize: p.intVar("DETECTOR_INPUT_SIZE", 640),
		RemoteURL:         getEnv("REMOTE_DETECTOR_URL", "https://detect.roboflow.com"),
		RemoteModel:       getEnv("REMOTE_DETECTOR_MODEL", "license-plate-recognition-rxg4e/4"),
		RemoteAPIKey:      os.Getenv("REMOTE_DETECTOR_API_KEY"),
		RemoteTimeout:     p.durationVar("REMOTE_DETECTOR_TIMEOUT", 10*time.Second),
		RemoteRPM:         p.intVar("REMOTE_DETECTOR_RPM", 0),
		DetectWorkers:     p.intVar("DETECT_WORKERS", 4),

		OCREngine:      strings.ToLower(getEnv("OCR_ENGINE", OCRTesseract)),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),
		ThreadFraction: p.floatVar("THREAD_FRACTION", 0.6),
		BatchSize:      p.intVar("BATCH_SIZE", 6),
		QueueDepth:     p.intVar("QUEUE_DEPTH", 0),

		ConfidenceThreshold: p.floatVar("CONFIDENCE_THRESHOLD", 0.4),
		OverlapThreshold:    p.floatVar("OVERLAP_THRESHOLD", 0.3),
		MaxDimension:        p.intVar("MAX_DIMENSION", 1280),
		DropThreshold:       p.floatVar("DROP_THRESHOLD", 0.3),
		CropPadding:         p.floatVar("CROP_PADDING", 0.05),

		MaxConcurrentRequests: p.intVar("MAX_CONCURRENT_REQUESTS", 2),
		AdmissionPolicy:       strings.ToLower(getEnv("ADMISSION_POLICY", "queue")),
		AdmissionWait:         p.durationVar("ADMISSION_WAIT", 5*time.Second),
		RequestTimeout:        p.durationVar("REQUEST_TIMEOUT", 30*time.Second),
		ReclaimMemory:         p.boolVar("RECLAIM_MEMORY", false),

		DebugMode: p.boolVar("DEBUG_MODE", false),
		DebugDir:  getEnv("DEBUG_DIR", "debug_crops"),

		RedisHost:      os.Getenv("REDIS_HOST"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		ResultCacheTTL: p.durationVar("RESULT_CACHE_TTL", 5*time.Minute),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the variant selections and value ranges.
func (c Config) Validate() error {
	var errs []error
	switch c.Detector {
	case DetectorLocal:
		if c.DetectorModelPath == "" {
			errs = append(errs, errors.New("DETECTOR_MODEL_PATH is required for the local detector"))
		}
	case DetectorRemote:
		if c.RemoteAPIKey == "" {
			errs = append(errs, errors.New("REMOTE_DETECTOR_API_KEY is required for the remote detector"))
		}
	default:
		errs = append(errs, fmt.Errorf("DETECTOR must be %q or %q, got %q", DetectorLocal, DetectorRemote, c.Detector))
	}
	switch c.OCREngine {
	case OCRTesseract, OCRVision, OCRGemini:
	default:
		errs = append(errs, fmt.Errorf("OCR_ENGINE must be one of tesseract, vision, gemini, got %q", c.OCREngine))
	}
	switch c.AdmissionPolicy {
	case "queue", "reject":
	default:
		errs = append(errs, fmt.Errorf("ADMISSION_POLICY must be queue or reject, got %q", c.AdmissionPolicy))
	}
	for name, v := range map[string]float64{
		"CONFIDENCE_THRESHOLD": c.ConfidenceThreshold,
		"OVERLAP_THRESHOLD":    c.OverlapThreshold,
		"DROP_THRESHOLD":       c.DropThreshold,
		"THREAD_FRACTION":      c.ThreadFraction,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	if c.CropPadding < 0 {
		errs = append(errs, fmt.Errorf("CROP_PADDING must not be negative, got %v", c.CropPadding))
	}
	if c.MaxDimension < 1 {
		errs = append(errs, fmt.Errorf("MAX_DIMENSION must be positive, got %d", c.MaxDimension))
	}
	if c.MaxConcurrentRequests < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrentRequests))
	}
	return errors.Join(errs...)
}

// RedisEnabled reports whether a Redis host was configured.
func (c Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// RedisAddr returns host:port for the result cache.
func (c Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// parser collects parse errors so that every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) intVar(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) floatVar(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (p *parser) boolVar(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

// durationVar accepts Go duration strings ("30s") or a bare number of seconds.
func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
