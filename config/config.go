// config/config.go
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the service reads from the environment.
type Config struct {
	Port           string   `env:"PORT" envDefault:"5200"`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	JWTSigningKey  string   `env:"JWT_SIGNING_KEY,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	SessionCookie  string   `env:"SESSION_COOKIE" envDefault:"techfest_session"`

	// Participants from this institute get reserved slots and the reserved fee.
	ReservedInstitute string `env:"RESERVED_INSTITUTE" envDefault:"Indian Institute of Information Technology, Sri City"`
	PublicIDLength    int    `env:"PUBLIC_ID_LENGTH" envDefault:"10"`

	RejectedInvitationRetention time.Duration `env:"REJECTED_INVITATION_RETENTION" envDefault:"168h"`
	CleanupInterval             time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	R2 R2Config

	ResendAPIKey string `env:"RESEND_API_KEY"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"Techfest <noreply@techfest.local>"`
	FrontendURL  string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	ProfileSyncURL      string        `env:"PROFILE_SYNC_URL"`
	ProfileSyncPath     string        `env:"PROFILE_SYNC_PATH" envDefault:"/api/v1/public/profiles"`
	ProfileSyncToken    string        `env:"PROFILE_SYNC_TOKEN"`
	ProfileSyncInterval time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"1m"`
}

// R2Config is optional; uploads are disabled when AccountID or Bucket is empty.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse parses the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PublicIDLength < 6 || cfg.PublicIDLength > 32 {
		return nil, fmt.Errorf("PUBLIC_ID_LENGTH must be between 6 and 32, got %d", cfg.PublicIDLength)
	}
	if cfg.RejectedInvitationRetention <= 0 {
		return nil, fmt.Errorf("REJECTED_INVITATION_RETENTION must be positive")
	}
	return &cfg, nil
}
