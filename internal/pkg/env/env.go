package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultBaseURL = "http://localhost:5000"

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (hosted deployments, tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt parses an integer setting, returning def when unset or malformed.
func GetEnvInt(key string, def int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// GetEnvFloat parses a float setting, returning def when unset or malformed.
func GetEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func SetupEnvFile() {
	// Look for .env file in project root
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/speedai to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	// Hosted environments inject variables directly.
	Env = map[string]string{}
	log.Printf("No .env file found, using process environment only")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

// BaseURL returns the public base URL used in links sent to users.
// Order: FRONTEND_URL, first production domain of REPLIT_DOMAINS,
// REPLIT_DEV_DOMAIN, localhost.
func BaseURL() string {
	if v := strings.TrimSpace(GetEnv("FRONTEND_URL", "")); v != "" {
		return strings.TrimRight(v, "/")
	}

	for _, domain := range strings.Split(GetEnv("REPLIT_DOMAINS", ""), ",") {
		domain = strings.TrimSpace(domain)
		if domain == "" || strings.HasSuffix(domain, ".replit.dev") {
			continue
		}
		return withScheme(domain)
	}

	if v := strings.TrimSpace(GetEnv("REPLIT_DEV_DOMAIN", "")); v != "" {
		return withScheme(v)
	}

	return defaultBaseURL
}

func withScheme(domain string) string {
	domain = strings.TrimRight(domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}
