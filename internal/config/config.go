package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port            string `env:"PORT" envDefault:"8080"`
	DefaultProvider string `env:"DEFAULT_PROVIDER" envDefault:"openai"`
	DefaultModel    string `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	SystemPrompt    string `env:"SYSTEM_PROMPT"`
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OllamaHost      string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`

	QuestionTimeout time.Duration `env:"QUESTION_TIMEOUT" envDefault:"30s"`
	MatchTimeout    time.Duration `env:"MATCH_TIMEOUT" envDefault:"45s"`
	CloseGrace      time.Duration `env:"CLOSE_GRACE" envDefault:"100ms"`

	CatalogFile string `env:"CATALOG_FILE"`
	GamesDir    string `env:"GAMES_DIR"`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"true"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"./playtutor-results.txt"`
	ResultsDB     string `env:"RESULTS_DB" envDefault:"./data/results.db"`

	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"30m"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	return FromEnv()
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	c.DefaultProvider = strings.ToLower(strings.TrimSpace(c.DefaultProvider))
	if c.DefaultProvider != "openai" && c.DefaultProvider != "ollama" {
		return Config{}, fmt.Errorf("unknown DEFAULT_PROVIDER %q", c.DefaultProvider)
	}
	if c.QuestionTimeout <= 0 || c.MatchTimeout <= 0 || c.CloseGrace <= 0 {
		return Config{}, fmt.Errorf("timeouts must be positive")
	}
	return c, nil
}
