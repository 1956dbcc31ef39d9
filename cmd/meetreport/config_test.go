package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const completeYAML = `
login-email: ops@example.com
login-password: console-secret
sender-email: reports@example.com
sender-password: smtp-app-password
receiver-email: team@example.com
login-url: https://console.example.com/login
report-url: https://console.example.com/meetings/failed
profile-url: https://console.example.com/profile
`

func TestLoadConfig_Defaults(t *testing.T) {
	resetMeetreportEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, completeYAML), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.DayOffset != 1 {
		t.Fatalf("day-offset = %d, want 1", cfg.DayOffset)
	}
	if cfg.SMTPHost != "smtp.gmail.com" || cfg.SMTPPort != 587 {
		t.Fatalf("smtp = %s:%d", cfg.SMTPHost, cfg.SMTPPort)
	}
	if cfg.MailSubject != "Failed Meetings Data Log" {
		t.Fatalf("mail-subject = %q", cfg.MailSubject)
	}
	if !cfg.Headless {
		t.Fatal("headless should default to true")
	}
	if cfg.PostLoginDelay != 5*time.Second {
		t.Fatalf("post-login-delay = %s, want 5s", cfg.PostLoginDelay)
	}
	if cfg.ActionTimeout != 30*time.Second {
		t.Fatalf("action-timeout = %s, want 30s", cfg.ActionTimeout)
	}
	if cfg.ArchiveDir != "" || cfg.HistoryDBPath != "" || cfg.MetricsTextfile != "" {
		t.Fatal("optional outputs should be disabled by default")
	}
	if cfg.HistoryRetentionDays != 90 {
		t.Fatalf("history-retention-days = %d, want 90", cfg.HistoryRetentionDays)
	}
	if !strings.HasSuffix(cfg.LogFile, filepath.Join("meetreport", "meetreport.log")) {
		t.Fatalf("log-file = %q", cfg.LogFile)
	}
	if cfg.ConfigPath == "" {
		t.Fatal("ConfigPath should record the file used")
	}
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	resetMeetreportEnv(t)
	t.Setenv("MEETREPORT_DAY_OFFSET", "3")
	t.Setenv("MEETREPORT_RECEIVER_EMAIL", "oncall@example.com")
	t.Setenv("MEETREPORT_ACTION_TIMEOUT", "45s")

	cfg, err := loadConfig(writeTempConfig(t, completeYAML+"day-offset: 2\n"), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.DayOffset != 3 {
		t.Fatalf("day-offset = %d, want 3", cfg.DayOffset)
	}
	if cfg.ReceiverEmail != "oncall@example.com" {
		t.Fatalf("receiver-email = %q", cfg.ReceiverEmail)
	}
	if cfg.ActionTimeout != 45*time.Second {
		t.Fatalf("action-timeout = %s, want 45s", cfg.ActionTimeout)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	resetMeetreportEnv(t)
	t.Setenv("MEETREPORT_LOGIN_EMAIL", "from-env@example.com")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "MEETREPORT_LOGIN_EMAIL=from-file@example.com\nMEETREPORT_SENDER_EMAIL=sender-from-file@example.com\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv sets variables directly; make sure they do not leak.
	t.Cleanup(func() { os.Unsetenv("MEETREPORT_SENDER_EMAIL") })

	cfg, err := loadConfig(filepath.Join(dir, "missing.yml"), envFile)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.LoginEmail != "from-env@example.com" {
		t.Fatalf("login-email = %q, environment must win over .env", cfg.LoginEmail)
	}
	if cfg.SenderEmail != "sender-from-file@example.com" {
		t.Fatalf("sender-email = %q", cfg.SenderEmail)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty for missing file", cfg.ConfigPath)
	}
}

func TestLoadConfig_MissingEnvFileIgnored(t *testing.T) {
	resetMeetreportEnv(t)

	if _, err := loadConfig(writeTempConfig(t, completeYAML), filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	resetMeetreportEnv(t)
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	cfg, err := loadConfig(writeTempConfig(t, completeYAML+"history-db-path: ~/meetreport/history.duckdb\n"), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if want := filepath.Join(home, "meetreport", "history.duckdb"); cfg.HistoryDBPath != want {
		t.Fatalf("history-db-path = %q, want %q", cfg.HistoryDBPath, want)
	}
}

func TestValidate(t *testing.T) {
	resetMeetreportEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		errSubstring string
	}{
		{
			name:         "all required keys reported",
			configYAML:   "day-offset: 1\n",
			errSubstring: "missing required configuration: login-email, login-password, sender-email, sender-password, receiver-email, login-url, report-url, profile-url",
		},
		{
			name:         "relative url rejected",
			configYAML:   strings.Replace(completeYAML, "https://console.example.com/profile", "/profile", 1),
			errSubstring: "invalid profile-url",
		},
		{
			name:         "negative day offset rejected",
			configYAML:   completeYAML + "day-offset: -1\n",
			errSubstring: "invalid day-offset",
		},
		{
			name:         "smtp port range",
			configYAML:   completeYAML + "smtp-port: 70000\n",
			errSubstring: "invalid smtp-port",
		},
		{
			name:         "bucket url requires credentials",
			configYAML:   completeYAML + "archive-dir: /tmp/meetreport\narchive-bucket-url: s3://reports/meetings\n",
			errSubstring: "archive-s3-access-key and archive-s3-secret-key are required",
		},
		{
			name:         "bucket url requires archive dir",
			configYAML:   completeYAML + "archive-bucket-url: s3://reports/meetings\narchive-s3-access-key: k\narchive-s3-secret-key: s\n",
			errSubstring: "archive-bucket-url requires archive-dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML), "")
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			err = cfg.validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errSubstring) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "****"},
		{"hunter22", "hu****22"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Fatalf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskedDumpHidesSecrets(t *testing.T) {
	resetMeetreportEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, completeYAML), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	out, err := yaml.Marshal(cfg.masked())
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	dump := string(out)
	for _, secret := range []string{"console-secret", "smtp-app-password"} {
		if strings.Contains(dump, secret) {
			t.Fatalf("dump leaks %q:\n%s", secret, dump)
		}
	}
	if !strings.Contains(dump, "login-email: ops@example.com") {
		t.Fatalf("dump missing login-email:\n%s", dump)
	}
	if !strings.Contains(dump, "action-timeout: 30s") {
		t.Fatalf("dump missing action-timeout:\n%s", dump)
	}
}

func TestJobConfigMapping(t *testing.T) {
	resetMeetreportEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, completeYAML+"max-month-steps: 6\n"), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	jc := cfg.jobConfig()
	if jc.Portal.Email != "ops@example.com" || jc.Portal.ReportURL != "https://console.example.com/meetings/failed" {
		t.Fatalf("portal config = %+v", jc.Portal)
	}
	if jc.MaxMonthSteps != 6 {
		t.Fatalf("max-month-steps = %d, want 6", jc.MaxMonthSteps)
	}
	mc := cfg.mailConfig()
	if mc.From != "reports@example.com" || mc.To != "team@example.com" || mc.Port != 587 {
		t.Fatalf("mail config = %+v", mc)
	}
}

func TestArchiveAndLoggingKeysMapped(t *testing.T) {
	resetMeetreportEnv(t)
	t.Setenv("MEETREPORT_ARCHIVE_S3_SESSION_TOKEN", "sts-session-token")
	t.Setenv("MEETREPORT_LOG_SOURCE", "true")

	cfg, err := loadConfig(writeTempConfig(t, completeYAML+"archive-s3-access-key: AKIAEXAMPLE\narchive-s3-secret-key: wJalrSecret\n"), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	ac := cfg.archiveConfig()
	if ac.S3SessionToken != "sts-session-token" {
		t.Fatalf("S3SessionToken = %q", ac.S3SessionToken)
	}
	if ac.S3AccessKey != "AKIAEXAMPLE" || ac.S3SecretKey != "wJalrSecret" {
		t.Fatalf("archive config = %+v", ac)
	}
	if !cfg.loggingConfig().WithSource {
		t.Fatal("log-source should enable WithSource")
	}

	out, err := yaml.Marshal(cfg.masked())
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	dump := string(out)
	for _, secret := range []string{"sts-session-token", "AKIAEXAMPLE", "wJalrSecret"} {
		if strings.Contains(dump, secret) {
			t.Fatalf("dump leaks %q:\n%s", secret, dump)
		}
	}
	if !strings.Contains(dump, "archive-s3-session-token: st*************en") {
		t.Fatalf("dump missing masked session token:\n%s", dump)
	}
	if !strings.Contains(dump, "log-source: true") {
		t.Fatalf("dump missing log-source:\n%s", dump)
	}
}

func TestLoggingAndTokenDefaults(t *testing.T) {
	resetMeetreportEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, completeYAML), "")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.LogSource {
		t.Fatal("log-source should default to false")
	}
	if cfg.archiveConfig().S3SessionToken != "" {
		t.Fatal("archive-s3-session-token should default to empty")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetMeetreportEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix+"_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
