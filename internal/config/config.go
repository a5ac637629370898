package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/inbox-assistant/internal/domain"
)

// Config holds all configuration for the assistant. It is loaded once at
// startup and treated as immutable for the rest of the process lifetime;
// every component receives the slice of it that it needs.
type Config struct {
	Server           ServerConfig         `yaml:"server"`
	DatabaseURL      string               `yaml:"database_url"`
	RedisURL         string               `yaml:"redis_url"`
	Gmail            GmailConfig          `yaml:"gmail"`
	ProcessingLimits LimitsConfig         `yaml:"processing_limits"`
	SpamDetection    SpamConfig           `yaml:"spam_detection"`
	Categorization   CategorizationConfig `yaml:"categorization"`
	Unsubscribe      UnsubscribeConfig    `yaml:"unsubscribe_detection"`
	AIResponse       AIResponseConfig     `yaml:"ai_response"`
	Schedule         ScheduleConfig       `yaml:"schedule"`
}

// ServerConfig holds the daemon status endpoint configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GmailConfig holds OAuth credential file locations for the Gmail client.
type GmailConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
}

// LimitsConfig bounds a single processing run.
type LimitsConfig struct {
	MaxEmailsPerRun          int `yaml:"max_emails_per_run"`
	MaxDraftsPerRun          int `yaml:"max_drafts_per_run"`
	MaxProcessingTimeMinutes int `yaml:"max_processing_time_minutes"`
	RateLimitDelayMS         int `yaml:"rate_limit_delay_ms"`
	DailyCallBudget          int `yaml:"daily_call_budget"`
}

// Limits converts the raw YAML values into domain processing limits.
func (c LimitsConfig) Limits() domain.ProcessingLimits {
	return domain.ProcessingLimits{
		MaxMessagesPerRun: c.MaxEmailsPerRun,
		MaxDraftsPerRun:   c.MaxDraftsPerRun,
		MaxDuration:       time.Duration(c.MaxProcessingTimeMinutes) * time.Minute,
		InterCallDelay:    time.Duration(c.RateLimitDelayMS) * time.Millisecond,
	}
}

// SpamConfig holds spam detection rules and heuristic thresholds.
// The heuristic values default to the tuning the scorer was built with;
// they are exposed here rather than hard-coded.
type SpamConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Sensitivity       string   `yaml:"sensitivity"` // low | medium | high
	Keywords          []string `yaml:"keywords"`
	SuspiciousDomains []string `yaml:"suspicious_domains"`
	WhitelistDomains  []string `yaml:"whitelist_domains"`
	UrgencyPhrases    []string `yaml:"urgency_phrases"`
	CapsRatioCutoff   float64  `yaml:"caps_ratio_cutoff"`
	MaxExclamations   int      `yaml:"max_exclamations"`
}

// Cutoff maps the configured sensitivity to its spam score cutoff.
// Lower cutoff means stricter filtering.
func (c SpamConfig) Cutoff() float64 {
	switch c.Sensitivity {
	case "low":
		return 0.8
	case "high":
		return 0.4
	default:
		return 0.6
	}
}

// CategorizationConfig holds per-category keyword sets plus user-defined
// custom categories.
type CategorizationConfig struct {
	BusinessKeywords    []string         `yaml:"business_keywords"`
	PersonalKeywords    []string         `yaml:"personal_keywords"`
	PromotionalKeywords []string         `yaml:"promotional_keywords"`
	SocialKeywords      []string         `yaml:"social_keywords"`
	CustomCategories    []CustomCategory `yaml:"custom_categories"`
}

// CustomCategory defines a user category. Priority 0 means "after all
// built-ins, in configuration order"; an explicit positive value overrides
// the tie-break rank.
type CustomCategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Priority int      `yaml:"priority"`
}

// UnsubscribeConfig holds unsubscribe extraction settings.
type UnsubscribeConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Keywords          []string `yaml:"keywords"`
	SafeDomains       []string `yaml:"safe_domains"`
	AdvisoryThreshold float64  `yaml:"advisory_threshold"`
}

// AIResponseConfig holds draft generation settings. Templates are Liquid
// documents keyed by response type.
type AIResponseConfig struct {
	Enabled             bool              `yaml:"enabled"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold"`
	MaxResponseLength   int               `yaml:"max_response_length"`
	ResponseTemplates   map[string]string `yaml:"response_templates"`
}

// ScheduleConfig holds the daemon's run times (24h "HH:MM", local time).
type ScheduleConfig struct {
	RunAt []string `yaml:"run_at"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars on the host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("GMAIL_CREDENTIALS_PATH"); v != "" {
		cfg.Gmail.CredentialsPath = v
	}
	if v := os.Getenv("GMAIL_TOKEN_PATH"); v != "" {
		cfg.Gmail.TokenPath = v
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Gmail.CredentialsPath == "" {
		cfg.Gmail.CredentialsPath = "credentials.json"
	}
	if cfg.Gmail.TokenPath == "" {
		cfg.Gmail.TokenPath = "token.json"
	}
	if cfg.ProcessingLimits.MaxEmailsPerRun == 0 {
		cfg.ProcessingLimits.MaxEmailsPerRun = 100
	}
	if cfg.ProcessingLimits.MaxDraftsPerRun == 0 {
		cfg.ProcessingLimits.MaxDraftsPerRun = 20
	}
	if cfg.ProcessingLimits.MaxProcessingTimeMinutes == 0 {
		cfg.ProcessingLimits.MaxProcessingTimeMinutes = 30
	}
	if cfg.ProcessingLimits.RateLimitDelayMS == 0 {
		cfg.ProcessingLimits.RateLimitDelayMS = 100
	}
	if cfg.ProcessingLimits.DailyCallBudget == 0 {
		cfg.ProcessingLimits.DailyCallBudget = 10000
	}
	if cfg.SpamDetection.Sensitivity == "" {
		cfg.SpamDetection.Sensitivity = "medium"
	}
	if len(cfg.SpamDetection.Keywords) == 0 {
		cfg.SpamDetection.Keywords = []string{
			"lottery", "winner", "congratulations", "claim now", "urgent",
			"limited time", "act now", "free money", "guaranteed",
			"no obligation", "risk free", "100% free", "click here now",
		}
	}
	if len(cfg.SpamDetection.SuspiciousDomains) == 0 {
		cfg.SpamDetection.SuspiciousDomains = []string{
			"tempmail.org", "10minutemail.com", "guerrillamail.com",
		}
	}
	if len(cfg.SpamDetection.UrgencyPhrases) == 0 {
		cfg.SpamDetection.UrgencyPhrases = []string{
			"urgent", "immediate", "act now", "limited time",
		}
	}
	if cfg.SpamDetection.CapsRatioCutoff == 0 {
		cfg.SpamDetection.CapsRatioCutoff = 0.5
	}
	if cfg.SpamDetection.MaxExclamations == 0 {
		cfg.SpamDetection.MaxExclamations = 2
	}
	if len(cfg.Categorization.BusinessKeywords) == 0 {
		cfg.Categorization.BusinessKeywords = []string{
			"meeting", "project", "deadline", "invoice", "contract",
		}
	}
	if len(cfg.Categorization.PersonalKeywords) == 0 {
		cfg.Categorization.PersonalKeywords = []string{
			"family", "friend", "birthday", "vacation", "personal",
		}
	}
	if len(cfg.Categorization.PromotionalKeywords) == 0 {
		cfg.Categorization.PromotionalKeywords = []string{
			"sale", "discount", "offer", "deal", "promotion",
		}
	}
	if len(cfg.Categorization.SocialKeywords) == 0 {
		cfg.Categorization.SocialKeywords = []string{
			"facebook", "twitter", "linkedin", "instagram", "notification",
		}
	}
	if len(cfg.Unsubscribe.Keywords) == 0 {
		cfg.Unsubscribe.Keywords = []string{
			"unsubscribe", "opt out", "remove me", "stop emails",
		}
	}
	if cfg.Unsubscribe.AdvisoryThreshold == 0 {
		cfg.Unsubscribe.AdvisoryThreshold = 0.2
	}
	if cfg.AIResponse.ConfidenceThreshold == 0 {
		cfg.AIResponse.ConfidenceThreshold = 0.7
	}
	if cfg.AIResponse.MaxResponseLength == 0 {
		cfg.AIResponse.MaxResponseLength = 500
	}
	if len(cfg.Schedule.RunAt) == 0 {
		cfg.Schedule.RunAt = []string{"07:00", "13:00", "19:00"}
	}
}

// Validate checks the loaded configuration. Any failure here aborts a run
// before the first external call.
func (c *Config) Validate() error {
	if err := c.ProcessingLimits.Limits().Validate(); err != nil {
		return err
	}
	switch c.SpamDetection.Sensitivity {
	case "low", "medium", "high":
	default:
		return domain.ValidationError{Field: "spam_detection.sensitivity",
			Reason: fmt.Sprintf("must be low, medium or high, got %q", c.SpamDetection.Sensitivity)}
	}
	if t := c.AIResponse.ConfidenceThreshold; t < 0 || t > 1 {
		return domain.ValidationError{Field: "ai_response.confidence_threshold", Reason: "must be in [0,1]"}
	}
	if t := c.Unsubscribe.AdvisoryThreshold; t < 0 || t >= c.SpamDetection.Cutoff() {
		return domain.ValidationError{Field: "unsubscribe_detection.advisory_threshold",
			Reason: "must be in [0, spam cutoff)"}
	}
	for _, slot := range c.Schedule.RunAt {
		if _, err := time.Parse("15:04", slot); err != nil {
			return domain.ValidationError{Field: "schedule.run_at",
				Reason: fmt.Sprintf("%q is not a valid HH:MM time", slot)}
		}
	}
	for _, cc := range c.Categorization.CustomCategories {
		if cc.Name == "" {
			return domain.ValidationError{Field: "categorization.custom_categories", Reason: "name is required"}
		}
		if len(cc.Keywords) == 0 {
			return domain.ValidationError{Field: "categorization.custom_categories",
				Reason: fmt.Sprintf("category %q has no keywords", cc.Name)}
		}
	}
	return nil
}
