package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.chitchat/config.toml.
type Config struct {
	DefaultSession string     `toml:"default_session"`
	Auth           Auth       `toml:"auth"`
	Storage        Storage    `toml:"storage"`
	Summarizer     Summarizer `toml:"summarizer"`
	HTTP           HTTP       `toml:"http"`
	Fanout         Fanout     `toml:"fanout"`
	Log            Log        `toml:"log"`
}

// Auth configures sign-in.
type Auth struct {
	DefaultCountryCode  string        `toml:"default_country_code"`
	OIDCIssuer          string        `toml:"oidc_issuer"`
	OIDCClientID        string        `toml:"oidc_client_id"`
	OIDCClientSecret    string        `toml:"oidc_client_secret"`
	DeviceAuthURL       string        `toml:"device_auth_url"`
	TokenSecret         string        `toml:"token_secret"`
	TokenTTL            time.Duration `toml:"token_ttl"`
	CodeTTL             time.Duration `toml:"code_ttl"`
	MaxAttempts         int           `toml:"max_attempts"`
	ChallengeDifficulty int           `toml:"challenge_difficulty"`
	Admins              []string      `toml:"admins"`
}

// Storage configures the chat database and where attachments go.
type Storage struct {
	// DBPath is the database holding the room. Daemons that should share a
	// room point at the same file; empty means the session's own database.
	DBPath        string `toml:"db_path"`
	Backend       string `toml:"backend"` // "local" or "s3"
	S3Region      string `toml:"s3_region"`
	S3Endpoint    string `toml:"s3_endpoint"`
	S3Bucket      string `toml:"s3_bucket"`
	S3AccessKey   string `toml:"s3_access_key"`
	S3SecretKey   string `toml:"s3_secret_key"`
	PublicBaseURL string `toml:"public_base_url"`
	LocalDir      string `toml:"local_dir"` // empty: the session's attachments dir
}

// Summarizer configures the hosted model.
type Summarizer struct {
	BaseURL    string        `toml:"base_url"` // empty: the Gemini API default
	APIVersion string        `toml:"api_version"`
	Model      string        `toml:"model"`
	APIKey     string        `toml:"api_key"` // empty: summarization disabled
	Timeout    time.Duration `toml:"timeout"`
}

// HTTP configures the HTTP entry point.
type HTTP struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Fanout configures cross-process change notifications.
type Fanout struct {
	NATSURL       string `toml:"nats_url"` // empty: in-process only
	SubjectPrefix string `toml:"subject_prefix"`
}

// Log configures log file rotation.
type Log struct {
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`
}

// Default returns the configuration used for anything a file leaves unset.
func Default() *Config {
	return &Config{
		Auth: Auth{
			DefaultCountryCode:  "62",
			TokenTTL:            30 * 24 * time.Hour,
			CodeTTL:             10 * time.Minute,
			MaxAttempts:         3,
			ChallengeDifficulty: 16,
		},
		Storage: Storage{Backend: "local", S3Region: "us-east-1"},
		Summarizer: Summarizer{
			APIVersion: "v1beta",
			Model:      "gemini-2.0-flash",
			Timeout:    60 * time.Second,
		},
		HTTP:   HTTP{Enabled: true, Addr: "127.0.0.1:8787"},
		Fanout: Fanout{SubjectPrefix: "chitchat"},
		Log:    Log{MaxSizeMB: 20, MaxBackups: 5, MaxAgeDays: 28},
	}
}

// Load reads config from the given path on top of Default. Returns an error if
// the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, but a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Secret environment variables. They override the file.
const (
	EnvTokenSecret      = "CHITCHAT_TOKEN_SECRET"
	EnvS3SecretKey      = "CHITCHAT_S3_SECRET_KEY"
	EnvSummarizerAPIKey = "CHITCHAT_SUMMARIZER_API_KEY"
	EnvOIDCClientSecret = "CHITCHAT_OIDC_CLIENT_SECRET"
)

// ApplyEnv loads the given .env files, ignoring missing ones, and applies the
// secret overrides from the environment. Variables already set in the
// environment win over .env files.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	override(&c.Auth.TokenSecret, EnvTokenSecret)
	override(&c.Storage.S3SecretKey, EnvS3SecretKey)
	override(&c.Summarizer.APIKey, EnvSummarizerAPIKey)
	override(&c.Auth.OIDCClientSecret, EnvOIDCClientSecret)
	return nil
}

// EnsureTokenSecret makes sure a credential signing secret is configured. When
// none is set, a random one is generated and appended to envPath so restarts
// keep existing sign-ins valid.
func (c *Config) EnsureTokenSecret(envPath string) error {
	if c.Auth.TokenSecret != "" {
		return nil
	}
	env, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if env == nil {
		env = make(map[string]string)
	}
	if env[EnvTokenSecret] == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		env[EnvTokenSecret] = hex.EncodeToString(buf)
		if err := os.MkdirAll(filepath.Dir(envPath), 0700); err != nil {
			return err
		}
		if err := godotenv.Write(env, envPath); err != nil {
			return err
		}
		if err := os.Chmod(envPath, 0600); err != nil {
			return err
		}
	}
	c.Auth.TokenSecret = env[EnvTokenSecret]
	return nil
}

func override(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
