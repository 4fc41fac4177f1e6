package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Detection holds the tunables of the plagiarism detection pipeline.
type Detection struct {
	SimilarityThreshold float64
	MaxSentences        int
	MaxURLsPerSentence  int
	MaxMatches          int
	PlagiarismWeight    float64
	AIWeight            float64
	SearchTimeout       time.Duration
	FetchTimeout        time.Duration
}

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	DatabaseURL     string
	Env             string
	Detection       Detection
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	_ = godotenv.Load(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		DatabaseURL:     dbURL,
		Env:             env,
		Detection:       loadDetection(),
	}
}

func loadDetection() Detection {
	return Detection{
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.72),
		MaxSentences:        getEnvInt("MAX_SENTENCES", 8),
		MaxURLsPerSentence:  getEnvInt("MAX_URLS_PER_SENTENCE", 3),
		MaxMatches:          getEnvInt("MAX_MATCHES", 25),
		PlagiarismWeight:    getEnvFloat("PLAGIARISM_WEIGHT", 0.7),
		AIWeight:            getEnvFloat("AI_WEIGHT", 0.3),
		SearchTimeout:       time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 10)) * time.Second,
		FetchTimeout:        time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid float %q, using %g", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
