package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	JWTSecret      string        `yaml:"jwt_secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AdvancePerMin  int           `yaml:"advance_per_minute"` // per room, 0 disables
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey          string `yaml:"openai_key"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	GeminiKey          string `yaml:"gemini_key"`
	GeminiURL          string `yaml:"gemini_url"`
	DefaultModel       string `yaml:"default_model"`
	EvaluatorModel     string `yaml:"evaluator_model"`
	ConcurrentLimit    int    `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxOutputTokens    int    `yaml:"max_output_tokens"`
	HistoryTokenBudget int    `yaml:"history_token_budget"`
}

// PersonaConfig names one scripted participant.
type PersonaConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Persona string `yaml:"persona"`
}

type OrchestratorConfig struct {
	IndividualTurnThreshold int           `yaml:"individual_turn_threshold"`
	GroupRoundThreshold     int           `yaml:"group_round_threshold"`
	DefaultEvaluator        PersonaConfig `yaml:"default_evaluator"`
	IdleTimeout             time.Duration `yaml:"idle_timeout"`
	SubscriberBuffer        int           `yaml:"subscriber_buffer"`
	LockWait                time.Duration `yaml:"lock_wait"`
	LockTTL                 time.Duration `yaml:"lock_ttl"`
}

// TelegramConfig enables the chat presentation surface when Token is set.
// Each chat is one room; Cast is the scripted roster it starts sessions with.
type TelegramConfig struct {
	Token          string     `yaml:"token"`
	UpdateWorkers  int        `yaml:"update_workers"`
	CommandsPerMin int        `yaml:"commands_per_minute"`
	Cast           CastConfig `yaml:"cast"`
}

type CastConfig struct {
	Facilitator PersonaConfig   `yaml:"facilitator"`
	Respondents []PersonaConfig `yaml:"respondents"`
}

type SchedulerConfig struct {
	IdleSweepCron string `yaml:"idle_sweep_cron"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type WorkersConfig struct {
	OutcomePoolSize int `yaml:"outcome_pool_size"`
	OutcomeQueue    int `yaml:"outcome_queue"`
}

type Config struct {
	Log          LogConfig          `yaml:"log"`
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	AI           AIConfig           `yaml:"ai"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Security     SecurityConfig     `yaml:"security"`
	Workers      WorkersConfig      `yaml:"workers"`
	Telegram     TelegramConfig     `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates the
// fields the server cannot run without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw YAML and fills defaults. It does not validate.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 2 * time.Minute
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	if c.AI.ConcurrentLimit <= 0 {
		c.AI.ConcurrentLimit = 16
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = "gpt-4o-mini"
	}
	if c.AI.EvaluatorModel == "" {
		c.AI.EvaluatorModel = c.AI.DefaultModel
	}
	if c.AI.MaxOutputTokens <= 0 {
		c.AI.MaxOutputTokens = 512
	}
	if c.AI.HistoryTokenBudget <= 0 {
		c.AI.HistoryTokenBudget = 6000
	}

	o := &c.Orchestrator
	if o.IndividualTurnThreshold <= 0 {
		o.IndividualTurnThreshold = 7
	}
	if o.GroupRoundThreshold <= 0 {
		o.GroupRoundThreshold = 5
	}
	if o.DefaultEvaluator.ID == "" {
		o.DefaultEvaluator.ID = "evaluator"
	}
	if o.DefaultEvaluator.Name == "" {
		o.DefaultEvaluator.Name = "Evaluator"
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 32
	}
	if o.LockWait <= 0 {
		o.LockWait = 3 * time.Second
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 2 * time.Minute
	}

	if c.Scheduler.IdleSweepCron == "" {
		c.Scheduler.IdleSweepCron = "@every 1m"
	}
	if c.Workers.OutcomePoolSize <= 0 {
		c.Workers.OutcomePoolSize = 4
	}
	if c.Workers.OutcomeQueue <= 0 {
		c.Workers.OutcomeQueue = 64
	}

	t := &c.Telegram
	if t.UpdateWorkers <= 0 {
		t.UpdateWorkers = 4
	}
	if t.CommandsPerMin <= 0 {
		t.CommandsPerMin = 30
	}
	if t.Cast.Facilitator.ID == "" {
		t.Cast.Facilitator = PersonaConfig{ID: "facilitator", Name: "Dr. Vale", Persona: "calm, curious group therapist"}
	}
	if len(t.Cast.Respondents) == 0 {
		t.Cast.Respondents = []PersonaConfig{
			{ID: "ana", Name: "Ana", Persona: "guarded, dry humour"},
			{ID: "ben", Name: "Ben", Persona: "talkative, deflects with stories"},
			{ID: "chen", Name: "Chen", Persona: "quiet, precise"},
		}
	}
}

// Validate reports the first missing required setting. Database is optional;
// outcomes are only logged when it is absent.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.HTTP.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("http.jwt_secret is required outside dev mode")
	}
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return errors.New("security.encryption_key must be 32 bytes")
	}
	if c.Telegram.Token != "" && len(c.Telegram.Cast.Respondents) < 2 {
		return errors.New("telegram.cast needs at least two respondents")
	}
	if c.Orchestrator.IndividualTurnThreshold < 2 {
		return errors.New("orchestrator.individual_turn_threshold must be at least 2")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
