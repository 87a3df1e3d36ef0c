// Package config loads client configuration from the environment, with
// an optional YAML file for match creation defaults.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/odxplay/triviasync/internal/trivia"
)

// Config holds the environment-driven settings of the client.
type Config struct {
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`
	WSURL      string `env:"WS_URL" envDefault:"ws://localhost:8080/ws/match"`
	Token      string `env:"AUTH_TOKEN"`
	MatchID    string `env:"MATCH_ID"`
	MatchCode  string `env:"MATCH_CODE"`
	Username   string `env:"USERNAME"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// MatchDefaultsFile optionally points at a YAML file overriding the
	// match creation defaults.
	MatchDefaultsFile string `env:"MATCH_DEFAULTS_FILE"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// matchDefaults is the YAML shape of the match defaults file.
type matchDefaults struct {
	CategoriesCount        int `yaml:"categories_count"`
	QuestionsPerCategory   int `yaml:"questions_per_category"`
	QuestionTimer          int `yaml:"question_timer"`
	CategorySelectionTimer int `yaml:"category_selection_timer"`
	BreakTimer             int `yaml:"break_timer"`
}

// MatchDefaults returns the match creation config, merging the YAML
// file (when configured) over the built-in defaults.
func (c *Config) MatchDefaults() (trivia.MatchConfig, error) {
	cfg := trivia.DefaultMatchConfig()
	if c.MatchDefaultsFile == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(c.MatchDefaultsFile)
	if err != nil {
		return cfg, fmt.Errorf("read match defaults file: %w", err)
	}
	var def matchDefaults
	if err := yaml.Unmarshal(data, &def); err != nil {
		return cfg, fmt.Errorf("parse match defaults file: %w", err)
	}

	if def.CategoriesCount > 0 {
		cfg.CategoriesCount = def.CategoriesCount
	}
	if def.QuestionsPerCategory > 0 {
		cfg.QuestionsPerCategory = def.QuestionsPerCategory
	}
	if def.QuestionTimer > 0 {
		cfg.QuestionTimer = def.QuestionTimer
	}
	if def.CategorySelectionTimer > 0 {
		cfg.CategorySelectionTimer = def.CategorySelectionTimer
	}
	if def.BreakTimer > 0 {
		cfg.BreakTimer = def.BreakTimer
	}
	return cfg, nil
}
