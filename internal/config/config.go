package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	Backend             string
	MongoURI            string
	MongoDB             string
	FirebaseCredentials string
	FirebaseProjectID   string

	DefaultLocale       string
	DefaultApprovalFlow []string

	// Optional chat relay of leave notifications.
	MattermostURL       string
	MattermostBotToken  string
	MattermostChannelID string

	Limits           Limits
	QueryConcurrency int
}

// Limits bounds the fan-out of a single batch export.
type Limits struct {
	MaxStudents int
	MaxSubjects int
	MaxDays     int
}

// DefaultLimits are the bounds used when the environment does not override them.
func DefaultLimits() Limits {
	return Limits{MaxStudents: 100, MaxSubjects: 20, MaxDays: 366}
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	def := DefaultLimits()
	return &Config{
		Port:                getEnv("PORT", "3000"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Backend:             strings.ToLower(getEnv("STORE_BACKEND", BackendMongo)),
		MongoURI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGODB_DATABASE", "campus"),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
		DefaultLocale:       getEnv("DEFAULT_LOCALE", "en"),
		DefaultApprovalFlow: splitList(getEnv("DEFAULT_APPROVAL_FLOW", "Teacher,HOD")),
		MattermostURL:       getEnv("MATTERMOST_URL", ""),
		MattermostBotToken:  getEnv("MATTERMOST_BOT_TOKEN", ""),
		MattermostChannelID: getEnv("MATTERMOST_LEAVE_CHANNEL_ID", ""),
		Limits: Limits{
			MaxStudents: getEnvInt("MAX_BATCH_STUDENTS", def.MaxStudents),
			MaxSubjects: getEnvInt("MAX_BATCH_SUBJECTS", def.MaxSubjects),
			MaxDays:     getEnvInt("MAX_BATCH_DAYS", def.MaxDays),
		},
		QueryConcurrency: getEnvInt("QUERY_CONCURRENCY", 32),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
