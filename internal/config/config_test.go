package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

database_url: "postgres://localhost/inbox"
redis_url: "redis://localhost:6379"

gmail:
  credentials_path: "/etc/inbox/credentials.json"
  token_path: "/etc/inbox/token.json"

processing_limits:
  max_emails_per_run: 25
  max_drafts_per_run: 5
  max_processing_time_minutes: 10
  rate_limit_delay_ms: 250
  daily_call_budget: 500

spam_detection:
  enabled: true
  sensitivity: "high"
  keywords: ["lottery", "winner"]
  whitelist_domains: ["mycompany.com"]

unsubscribe_detection:
  enabled: true
  advisory_threshold: 0.3

ai_response:
  enabled: true
  confidence_threshold: 0.75
  max_response_length: 300

schedule:
  run_at: ["06:00", "18:00"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/inbox", cfg.DatabaseURL)
	assert.Equal(t, "/etc/inbox/credentials.json", cfg.Gmail.CredentialsPath)

	limits := cfg.ProcessingLimits.Limits()
	assert.Equal(t, 25, limits.MaxMessagesPerRun)
	assert.Equal(t, 5, limits.MaxDraftsPerRun)
	assert.Equal(t, 10*time.Minute, limits.MaxDuration)
	assert.Equal(t, 250*time.Millisecond, limits.InterCallDelay)

	assert.Equal(t, "high", cfg.SpamDetection.Sensitivity)
	assert.Equal(t, 0.4, cfg.SpamDetection.Cutoff())
	assert.Equal(t, []string{"lottery", "winner"}, cfg.SpamDetection.Keywords)
	assert.Equal(t, []string{"mycompany.com"}, cfg.SpamDetection.WhitelistDomains)

	assert.Equal(t, 0.3, cfg.Unsubscribe.AdvisoryThreshold)
	assert.Equal(t, 0.75, cfg.AIResponse.ConfidenceThreshold)
	assert.Equal(t, []string{"06:00", "18:00"}, cfg.Schedule.RunAt)

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database_url: "postgres://localhost/inbox"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 100, cfg.ProcessingLimits.MaxEmailsPerRun)
	assert.Equal(t, 20, cfg.ProcessingLimits.MaxDraftsPerRun)
	assert.Equal(t, 30, cfg.ProcessingLimits.MaxProcessingTimeMinutes)
	assert.Equal(t, "medium", cfg.SpamDetection.Sensitivity)
	assert.Equal(t, 0.6, cfg.SpamDetection.Cutoff())
	assert.NotEmpty(t, cfg.SpamDetection.Keywords)
	assert.NotEmpty(t, cfg.Categorization.BusinessKeywords)
	assert.NotEmpty(t, cfg.Unsubscribe.Keywords)
	assert.Equal(t, 0.2, cfg.Unsubscribe.AdvisoryThreshold)
	assert.Equal(t, 0.7, cfg.AIResponse.ConfidenceThreshold)
	assert.Equal(t, []string{"07:00", "13:00", "19:00"}, cfg.Schedule.RunAt)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database_url: "postgres://file/db"
`)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("GMAIL_CREDENTIALS_PATH", "/env/creds.json")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://env:6379", cfg.RedisURL)
	assert.Equal(t, "/env/creds.json", cfg.Gmail.CredentialsPath)
}

func TestValidateRejectsBadSensitivity(t *testing.T) {
	path := writeConfig(t, `
spam_detection:
  sensitivity: "extreme"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensitivity")
}

func TestValidateRejectsNegativeLimits(t *testing.T) {
	path := writeConfig(t, `
processing_limits:
  max_emails_per_run: -5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	path := writeConfig(t, `
ai_response:
  confidence_threshold: 1.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_threshold")
}

func TestValidateRejectsAdvisoryAboveCutoff(t *testing.T) {
	path := writeConfig(t, `
spam_detection:
  sensitivity: "high"
unsubscribe_detection:
  advisory_threshold: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "advisory 0.5 >= high cutoff 0.4")
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	path := writeConfig(t, `
schedule:
  run_at: ["25:99"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_at")
}

func TestValidateCustomCategories(t *testing.T) {
	path := writeConfig(t, `
categorization:
  custom_categories:
    - name: "newsletters"
      keywords: ["digest"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	path = writeConfig(t, `
categorization:
  custom_categories:
    - name: "empty"
`)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
