package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/meetreport/internal/archive"
	"github.com/tinytelemetry/meetreport/internal/browser"
	"github.com/tinytelemetry/meetreport/internal/job"
	"github.com/tinytelemetry/meetreport/internal/logging"
	"github.com/tinytelemetry/meetreport/internal/model"
	"github.com/tinytelemetry/meetreport/internal/notify"
	"github.com/tinytelemetry/meetreport/internal/portal"
)

const (
	envPrefix               = "MEETREPORT"
	defaultCleanupTimeout   = 30 * time.Second
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultLogMaxSizeMB     = 10
	defaultLogMaxBackups    = 5
	defaultArchiveKeepLast  = 30
	defaultHistoryRetention = 90 // days, 0 = keep forever
)

// requiredKeys must be set through the environment, .env or the config file.
var requiredKeys = []string{
	"login-email",
	"login-password",
	"sender-email",
	"sender-password",
	"receiver-email",
	"login-url",
	"report-url",
	"profile-url",
}

// appConfig is internal runtime configuration.
type appConfig struct {
	LoginEmail     string `mapstructure:"login-email" yaml:"login-email"`
	LoginPassword  string `mapstructure:"login-password" yaml:"login-password"`
	SenderEmail    string `mapstructure:"sender-email" yaml:"sender-email"`
	SenderPassword string `mapstructure:"sender-password" yaml:"sender-password"`
	ReceiverEmail  string `mapstructure:"receiver-email" yaml:"receiver-email"`
	LoginURL       string `mapstructure:"login-url" yaml:"login-url"`
	ReportURL      string `mapstructure:"report-url" yaml:"report-url"`
	ProfileURL     string `mapstructure:"profile-url" yaml:"profile-url"`

	DayOffset   int    `mapstructure:"day-offset" yaml:"day-offset"`
	SMTPHost    string `mapstructure:"smtp-host" yaml:"smtp-host"`
	SMTPPort    int    `mapstructure:"smtp-port" yaml:"smtp-port"`
	MailSubject string `mapstructure:"mail-subject" yaml:"mail-subject"`

	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ChromePath     string        `mapstructure:"chrome-path" yaml:"chrome-path"`
	SlowMotion     time.Duration `mapstructure:"slow-motion" yaml:"slow-motion"`
	ActionTimeout  time.Duration `mapstructure:"action-timeout" yaml:"action-timeout"`
	IdleQuiet      time.Duration `mapstructure:"idle-quiet" yaml:"idle-quiet"`
	PostLoginDelay time.Duration `mapstructure:"post-login-delay" yaml:"post-login-delay"`
	MaxMonthSteps  int           `mapstructure:"max-month-steps" yaml:"max-month-steps"`
	CleanupTimeout time.Duration `mapstructure:"cleanup-timeout" yaml:"cleanup-timeout"`

	LogLevel      string `mapstructure:"log-level" yaml:"log-level"`
	LogFormat     string `mapstructure:"log-format" yaml:"log-format"`
	LogFile       string `mapstructure:"log-file" yaml:"log-file"`
	LogMaxSizeMB  int    `mapstructure:"log-max-size-mb" yaml:"log-max-size-mb"`
	LogMaxBackups int    `mapstructure:"log-max-backups" yaml:"log-max-backups"`
	LogSource     bool   `mapstructure:"log-source" yaml:"log-source"`

	ArchiveDir         string `mapstructure:"archive-dir" yaml:"archive-dir"`
	ArchiveKeepLast    int    `mapstructure:"archive-keep-last" yaml:"archive-keep-last"`
	ArchiveBucketURL   string `mapstructure:"archive-bucket-url" yaml:"archive-bucket-url"`
	ArchiveS3Endpoint  string `mapstructure:"archive-s3-endpoint" yaml:"archive-s3-endpoint"`
	ArchiveS3Region    string `mapstructure:"archive-s3-region" yaml:"archive-s3-region"`
	ArchiveS3AccessKey string `mapstructure:"archive-s3-access-key" yaml:"archive-s3-access-key"`
	ArchiveS3SecretKey string `mapstructure:"archive-s3-secret-key" yaml:"archive-s3-secret-key"`
	ArchiveS3Token     string `mapstructure:"archive-s3-session-token" yaml:"archive-s3-session-token"`
	ArchiveS3UseSSL    bool   `mapstructure:"archive-s3-use-ssl" yaml:"archive-s3-use-ssl"`

	HistoryDBPath        string `mapstructure:"history-db-path" yaml:"history-db-path"`
	HistoryRetentionDays int    `mapstructure:"history-retention-days" yaml:"history-retention-days"`

	MetricsTextfile string `mapstructure:"metrics-textfile" yaml:"metrics-textfile"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

// loadConfig resolves configuration from defaults, the optional config file,
// the optional .env file and MEETREPORT_* environment variables, in
// increasing precedence. It does not validate required keys.
func loadConfig(configPath, envFile string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	if envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for _, key := range requiredKeys {
		v.SetDefault(key, "")
	}
	v.SetDefault("day-offset", model.DefaultDayOffset)
	v.SetDefault("smtp-host", model.DefaultSMTPHost)
	v.SetDefault("smtp-port", model.DefaultSMTPPort)
	v.SetDefault("mail-subject", model.DefaultMailSubject)
	v.SetDefault("headless", true)
	v.SetDefault("chrome-path", "")
	v.SetDefault("slow-motion", model.DefaultSlowMotion)
	v.SetDefault("action-timeout", model.DefaultActionTimeout)
	v.SetDefault("idle-quiet", model.DefaultIdleQuiet)
	v.SetDefault("post-login-delay", model.DefaultPostLoginDelay)
	v.SetDefault("max-month-steps", model.DefaultMaxMonthSteps)
	v.SetDefault("cleanup-timeout", defaultCleanupTimeout)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "meetreport", "meetreport.log"))
	v.SetDefault("log-max-size-mb", defaultLogMaxSizeMB)
	v.SetDefault("log-max-backups", defaultLogMaxBackups)
	v.SetDefault("log-source", false)
	v.SetDefault("archive-dir", "")
	v.SetDefault("archive-keep-last", defaultArchiveKeepLast)
	v.SetDefault("archive-bucket-url", "")
	v.SetDefault("archive-s3-endpoint", "")
	v.SetDefault("archive-s3-region", "")
	v.SetDefault("archive-s3-access-key", "")
	v.SetDefault("archive-s3-secret-key", "")
	v.SetDefault("archive-s3-session-token", "")
	v.SetDefault("archive-s3-use-ssl", true)
	v.SetDefault("history-db-path", "")
	v.SetDefault("history-retention-days", defaultHistoryRetention)
	v.SetDefault("metrics-textfile", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "meetreport", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	cfg.LogFile = expandHome(home, cfg.LogFile)
	cfg.ArchiveDir = expandHome(home, cfg.ArchiveDir)
	cfg.HistoryDBPath = expandHome(home, cfg.HistoryDBPath)
	cfg.MetricsTextfile = expandHome(home, cfg.MetricsTextfile)

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// missingKeys lists the required keys that are empty.
func (c appConfig) missingKeys() []string {
	values := map[string]string{
		"login-email":     c.LoginEmail,
		"login-password":  c.LoginPassword,
		"sender-email":    c.SenderEmail,
		"sender-password": c.SenderPassword,
		"receiver-email":  c.ReceiverEmail,
		"login-url":       c.LoginURL,
		"report-url":      c.ReportURL,
		"profile-url":     c.ProfileURL,
	}
	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// validate reports every configuration problem at once.
func (c appConfig) validate() error {
	var errs []error
	if missing := c.missingKeys(); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	for key, raw := range map[string]string{
		"login-url":   c.LoginURL,
		"report-url":  c.ReportURL,
		"profile-url": c.ProfileURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid %s: %q", key, raw))
		}
	}
	if c.DayOffset < 0 {
		errs = append(errs, fmt.Errorf("invalid day-offset: %d", c.DayOffset))
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid smtp-port: %d", c.SMTPPort))
	}
	if c.MaxMonthSteps <= 0 {
		errs = append(errs, fmt.Errorf("invalid max-month-steps: %d", c.MaxMonthSteps))
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid action-timeout: %s", c.ActionTimeout))
	}
	if c.ArchiveKeepLast < 0 {
		errs = append(errs, fmt.Errorf("invalid archive-keep-last: %d", c.ArchiveKeepLast))
	}
	if c.ArchiveBucketURL != "" {
		if c.ArchiveDir == "" {
			errs = append(errs, errors.New("archive-bucket-url requires archive-dir"))
		}
		if c.ArchiveS3AccessKey == "" || c.ArchiveS3SecretKey == "" {
			errs = append(errs, errors.New("archive-s3-access-key and archive-s3-secret-key are required with archive-bucket-url"))
		}
	}
	if c.HistoryRetentionDays < 0 {
		errs = append(errs, fmt.Errorf("invalid history-retention-days: %d", c.HistoryRetentionDays))
	}
	return errors.Join(errs...)
}

// masked returns a copy safe to print.
func (c appConfig) masked() appConfig {
	c.LoginPassword = maskSecret(c.LoginPassword)
	c.SenderPassword = maskSecret(c.SenderPassword)
	c.ArchiveS3AccessKey = maskSecret(c.ArchiveS3AccessKey)
	c.ArchiveS3SecretKey = maskSecret(c.ArchiveS3SecretKey)
	c.ArchiveS3Token = maskSecret(c.ArchiveS3Token)
	return c
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
	}
}

func (c appConfig) loggingConfig() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		WithSource: c.LogSource,
	}
}

func (c appConfig) browserOptions() browser.Options {
	return browser.Options{
		Headless:      c.Headless,
		ExecPath:      c.ChromePath,
		SlowMotion:    c.SlowMotion,
		ActionTimeout: c.ActionTimeout,
		IdleQuiet:     c.IdleQuiet,
	}
}

func (c appConfig) jobConfig() job.Config {
	return job.Config{
		Portal: portal.Config{
			LoginURL:       c.LoginURL,
			ReportURL:      c.ReportURL,
			ProfileURL:     c.ProfileURL,
			Email:          c.LoginEmail,
			Password:       c.LoginPassword,
			PostLoginDelay: c.PostLoginDelay,
		},
		Selectors:      portal.DefaultSelectors(),
		DayOffset:      c.DayOffset,
		MaxMonthSteps:  c.MaxMonthSteps,
		CleanupTimeout: c.CleanupTimeout,
	}
}

func (c appConfig) mailConfig() notify.Config {
	return notify.Config{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		From:     c.SenderEmail,
		Password: c.SenderPassword,
		To:       c.ReceiverEmail,
		Subject:  c.MailSubject,
	}
}

func (c appConfig) archiveConfig() archive.Config {
	return archive.Config{
		Dir:            c.ArchiveDir,
		KeepLast:       c.ArchiveKeepLast,
		BucketURL:      c.ArchiveBucketURL,
		S3Endpoint:     c.ArchiveS3Endpoint,
		S3Region:       c.ArchiveS3Region,
		S3AccessKey:    c.ArchiveS3AccessKey,
		S3SecretKey:    c.ArchiveS3SecretKey,
		S3SessionToken: c.ArchiveS3Token,
		S3UseSSL:       c.ArchiveS3UseSSL,
	}
}
