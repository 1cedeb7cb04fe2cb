package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPatchURL is where instrument patches are fetched from when nothing else is configured.
const DefaultPatchURL = "https://cdn.jsdelivr.net/npm/midi-instrument-patches@latest/"

// DefaultFetchTimeout bounds a single song or patch download.
const DefaultFetchTimeout = 30 * time.Second

// Config stores the application configuration.
type Config struct {
	// Player
	PatchURL     string
	SampleRate   int
	SoundFont    string // instrument bank identifier requested by the SoundFont engine
	Logging      bool   // basic console-style event sink
	FetchTimeout time.Duration

	// Logger
	LogLevel string
	LogPath  string

	// Control server
	HTTPAddr            string
	JWTSecret           string
	ControlPasswordHash string // bcrypt hash, empty disables /api/auth/token

	// Redis patch cache
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	PatchCacheTTL time.Duration

	// MinIO object store (s3:// locations)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	// Event journal database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		PatchURL:     getEnv("MIDI_PATCH_URL", DefaultPatchURL),
		SampleRate:   getEnvInt("MIDI_SAMPLE_RATE", 44100),
		SoundFont:    getEnv("MIDI_SOUNDFONT", "GeneralUser-GS.sf2"),
		Logging:      getEnvBool("MIDI_LOGGING", false),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", DefaultFetchTimeout),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  os.Getenv("LOG_PATH"),

		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		ControlPasswordHash: os.Getenv("CONTROL_PASSWORD_HASH"),

		RedisHost:     os.Getenv("REDIS_HOST"), // empty disables the patch cache
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PatchCacheTTL: getEnvDuration("PATCH_CACHE_TTL", 24*time.Hour),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "midi"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		DBHost:     os.Getenv("DB_HOST"), // empty disables the event journal
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "midi"),
	}
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool { return c.RedisHost != "" }

// MinioEnabled reports whether a MinIO endpoint is configured.
func (c *Config) MinioEnabled() bool { return c.MinioEndpoint != "" }

// DBEnabled reports whether the event journal database is configured.
func (c *Config) DBEnabled() bool { return c.DBHost != "" }
