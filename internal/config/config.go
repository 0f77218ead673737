package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Dispatch Dispatch `mapstructure:"dispatch"`
	Push     Push     `mapstructure:"push"`
	Email    Email    `mapstructure:"email"`
	SMS      SMS      `mapstructure:"sms"`
	Backup   Backup   `mapstructure:"backup"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Database holds the SQLite database path.
type Database struct {
	Path string `mapstructure:"path"`
}

// Dispatch holds dispatcher loop configuration.
type Dispatch struct {
	Interval      time.Duration `mapstructure:"interval"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	SnoozeMinutes int           `mapstructure:"snooze_minutes"`
}

// Push holds Web Push VAPID configuration.
type Push struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
}

// Email holds SMTP configuration for sending emails.
type Email struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SMS holds configuration for the HTTP SMS gateway.
type SMS struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Token      string `mapstructure:"token"`
}

// Backup holds encrypted off-site backup configuration. Backups are
// disabled unless bucket, access key, secret key, and passphrase are
// all set.
type Backup struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Bucket     string        `mapstructure:"bucket"`
	Region     string        `mapstructure:"region"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	Passphrase string        `mapstructure:"passphrase"`
	Interval   time.Duration `mapstructure:"interval"`
}

// Addr returns the listen address for the HTTP server.
func (s Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("database.path", "chime.db")
	v.SetDefault("dispatch.interval", time.Minute)
	v.SetDefault("dispatch.send_timeout", 10*time.Second)
	v.SetDefault("dispatch.snooze_minutes", 10)
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("backup.region", "auto")
	v.SetDefault("backup.interval", 24*time.Hour)
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":            "CHIME_PORT",
		"server.log_level":       "CHIME_LOG_LEVEL",
		"database.path":          "CHIME_DB_PATH",
		"push.vapid_public_key":  "CHIME_VAPID_PUBLIC_KEY",
		"push.vapid_private_key": "CHIME_VAPID_PRIVATE_KEY",
		"push.subscriber":        "CHIME_VAPID_SUBSCRIBER",
		"email.smtp_host":        "CHIME_SMTP_HOST",
		"email.smtp_port":        "CHIME_SMTP_PORT",
		"email.username":         "CHIME_SMTP_USER",
		"email.password":         "CHIME_SMTP_PASS",
		"email.from":             "CHIME_SMTP_FROM",
		"sms.gateway_url":        "CHIME_SMS_GATEWAY_URL",
		"sms.token":              "CHIME_SMS_TOKEN",
		"backup.endpoint":        "CHIME_BACKUP_ENDPOINT",
		"backup.bucket":          "CHIME_BACKUP_BUCKET",
		"backup.access_key":      "CHIME_BACKUP_ACCESS_KEY",
		"backup.secret_key":      "CHIME_BACKUP_SECRET_KEY",
		"backup.passphrase":      "CHIME_BACKUP_PASSPHRASE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

// Load reads configuration from the given file (optional) and the
// environment. A missing config file is not an error; defaults and
// environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
