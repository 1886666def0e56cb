// Package config loads runtime settings from the environment.
//
// An optional .env file in the working directory is read first; variables
// already set in the process environment win over it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/contribution-engine/audit"
	"github.com/warp/contribution-engine/generic"
)

type Config struct {
	Port        int
	DBPath      string
	CORSOrigins []string

	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json
	LogFile   string // also write logs here when set

	// JWTSecret enables bearer-token actor identity. Empty means the API
	// trusts X-Actor-ID / X-Actor-Role headers (development only).
	JWTSecret string

	// PolicyFile is loaded into the policy store on startup when set.
	PolicyFile string

	RecalcInterval time.Duration // 0 disables the scheduler
	RecalcWorkers  int

	AuditBuffer int
	Mail        audit.MailConfig
}

// Load reads .env (if present) and then the environment.
func Load() Config {
	_ = godotenv.Load(".env")
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		Port:           getenvInt("INCENTIVE_HTTP_PORT", 8080),
		DBPath:         getenv("INCENTIVE_DB_PATH", "./data/incentives.db"),
		CORSOrigins:    getenvList("INCENTIVE_CORS_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		LogLevel:       getenv("INCENTIVE_LOG_LEVEL", "info"),
		LogFormat:      getenv("INCENTIVE_LOG_FORMAT", "text"),
		LogFile:        getenv("INCENTIVE_LOG_FILE", ""),
		JWTSecret:      getenv("INCENTIVE_JWT_SECRET", ""),
		PolicyFile:     getenv("INCENTIVE_POLICY_FILE", ""),
		RecalcInterval: getenvDuration("INCENTIVE_RECALC_INTERVAL", time.Hour),
		RecalcWorkers:  getenvInt("INCENTIVE_RECALC_WORKERS", 4),
		AuditBuffer:    getenvInt("INCENTIVE_AUDIT_BUFFER", 256),
		Mail: audit.MailConfig{
			Host:          getenv("SMTP_HOST", ""),
			Port:          getenvInt("SMTP_PORT", 587),
			User:          getenv("SMTP_USER", ""),
			Pass:          getenv("SMTP_PASS", ""),
			From:          getenv("SMTP_FROM", ""),
			To:            getenvList("INCENTIVE_AUDIT_MAIL_TO", nil),
			SkipTLSVerify: getenvBool("SMTP_SKIP_TLS_VERIFY", false),
			Actions:       auditActions(getenvList("INCENTIVE_AUDIT_MAIL_ACTIONS", nil)),
		},
	}
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(k string, fallback bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getenvList splits a comma-separated value, dropping blanks.
func getenvList(k string, fallback []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func auditActions(names []string) []generic.AuditAction {
	var out []generic.AuditAction
	for _, n := range names {
		out = append(out, generic.AuditAction(n))
	}
	return out
}
