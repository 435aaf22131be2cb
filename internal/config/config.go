package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/fitflow/fitflow-backend/internal/logging"
)

type Config struct {
	GeminiAPIKey      string
	GeminiModel       string
	YouTubeAPIKey     string
	InternalAPIKey    string
	DatabaseURL       string
	CorpusDatabaseURL string
	HTTPPort          string
	AIServicePort     string
	AIServiceURL      string
	LogLevel          string
	LogFormat         string
	JWTSecret         string
	JWTTTLHours       int
	GoogleClientID    string
	SynonymsPath      string

	RecommendCacheTTLMinutes int
	AIRateLimitPerMinute     int
	RetrievalUseLogTags      bool
	CORSAllowedOrigins       []string
}

var AppConfig Config

// LoadConfig reads .env (when present) and the process environment into AppConfig.
// Credentials are not validated here: each binary checks what it needs, and the
// generative and video keys are only checked when a call is made.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logging.Info().Msg("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		YouTubeAPIKey:     getEnv("YOUTUBE_API_KEY", ""),
		InternalAPIKey:    getEnv("INTERNAL_API_KEY", ""),
		DatabaseURL:       getEnv("DATABASE_URL", "fitness.db"),
		CorpusDatabaseURL: getEnv("CORPUS_DATABASE_URL", ""),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		AIServicePort:     getEnv("AI_HTTP_PORT", "6000"),
		AIServiceURL:      strings.TrimRight(getEnv("AI_SERVICE_URL", "http://localhost:6000"), "/"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTTTLHours:       getEnvAsInt("JWT_TTL_HOURS", 24*7),
		GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		SynonymsPath:      getEnv("SYNONYMS_PATH", ""),

		RecommendCacheTTLMinutes: getEnvAsInt("RECOMMEND_CACHE_TTL_MINUTES", 60),
		AIRateLimitPerMinute:     getEnvAsInt("AI_RATE_LIMIT_PER_MINUTE", 5),
		RetrievalUseLogTags:      getEnvAsBool("RETRIEVAL_USE_LOG_TAGS", false),
		CORSAllowedOrigins:       getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	return &AppConfig
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
