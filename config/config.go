package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultOriginalsSubDir  = "originals"
	DefaultAnnotatedSubDir  = "annotated"
	DefaultThumbnailsSubDir = "thumbnails"
)

const (
	defaultMaxUploadBytes      = 16 << 20 // 16 MiB
	defaultClassifyQueueSize   = 64
	defaultNumClassifyWorkers  = 4
	defaultClassifierTimeout   = 10 * time.Second
	defaultClassifierRetries   = 3
	defaultThumbnailMaxSize    = 300
	defaultTokenExpiryHours    = 24
	defaultRecentSessionsLimit = 10

	defaultModelURL = "https://api-inference.huggingface.co/models/trpakov/vit-face-expression"
)

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for stored assets
	OriginalsPath    string // full-calculated path for original uploads
	AnnotatedPath    string // full-calculated path for annotated copies
	ThumbnailsPath   string // full-calculated path for dashboard thumbnails

	// upload limits
	MaxUploadBytes int64

	// face detection model paths (DNN)
	FaceDNNNetConfigPath   string
	FaceDNNNetModelPath    string
	MinDetectionConfidence float64

	// hosted emotion classifier settings
	ClassifierModelURL string
	ClassifierAPIToken string
	ClassifierTimeout  time.Duration
	ClassifierRetries  int

	// per-face classification worker settings
	ClassifyQueueSize  int
	NumClassifyWorkers int

	// dashboard settings
	ThumbnailMaxSize    int
	RecentSessionsLimit int

	// auth settings
	JWTSecret        string
	TokenExpiryHours int

	// dashboard trend dates are bucketed in this location
	ReportLocation *time.Location

	CORSAllowedOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvInt64OrDefault(envVar string, defaultVal int64) int64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "sessions.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	originalsSubDir := getEnvOrDefault("ORIGINALS_SUBDIR", DefaultOriginalsSubDir)
	annotatedSubDir := getEnvOrDefault("ANNOTATED_SUBDIR", DefaultAnnotatedSubDir)
	thumbnailsSubDir := getEnvOrDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)

	tzName := getEnvOrDefault("REPORT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("invalid REPORT_TIMEZONE '%s': %w", tzName, err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	corsOrigins := strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	cfg := Config{
		DatabasePath:     dbPath,
		MediaStoragePath: absMediaStorage,
		OriginalsPath:    filepath.Join(absMediaStorage, originalsSubDir),
		AnnotatedPath:    filepath.Join(absMediaStorage, annotatedSubDir),
		ThumbnailsPath:   filepath.Join(absMediaStorage, thumbnailsSubDir),

		MaxUploadBytes: getEnvInt64OrDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),

		FaceDNNNetConfigPath:   getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt"),
		FaceDNNNetModelPath:    getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"),
		MinDetectionConfidence: getEnvFloatOrDefault("MIN_DETECTION_CONFIDENCE", 0.5),

		ClassifierModelURL: getEnvOrDefault("FER_MODEL_URL", defaultModelURL),
		ClassifierAPIToken: os.Getenv("FER_API_TOKEN"),
		ClassifierTimeout:  getEnvDurationOrDefault("FER_TIMEOUT", defaultClassifierTimeout),
		ClassifierRetries:  getEnvIntOrDefault("FER_MAX_RETRIES", defaultClassifierRetries),

		ClassifyQueueSize:  getEnvIntOrDefault("CLASSIFY_QUEUE_SIZE", defaultClassifyQueueSize),
		NumClassifyWorkers: getEnvIntOrDefault("NUM_CLASSIFY_WORKERS", defaultNumClassifyWorkers),

		ThumbnailMaxSize:    getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		RecentSessionsLimit: getEnvIntOrDefault("RECENT_SESSIONS_LIMIT", defaultRecentSessionsLimit),

		JWTSecret:        jwtSecret,
		TokenExpiryHours: getEnvIntOrDefault("TOKEN_EXPIRY_HOURS", defaultTokenExpiryHours),

		ReportLocation: loc,

		CORSAllowedOrigins: corsOrigins,
	}

	return cfg, nil
}
