// Package config loads the bot configuration: a YAML file overlaid by
// environment variables, with .env picked up for local runs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath           = "config.yaml"
	DefaultFundRulesPath  = "fund_rules.json"
	DefaultJournalDir     = "./wal/operations"
	DefaultCacheTTL       = 5 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	TelegramToken   string        `yaml:"telegram_token"`
	SpreadsheetID   string        `yaml:"spreadsheet_id"`
	CredentialsFile string        `yaml:"credentials_file"`
	AllowedUserIDs  []int64       `yaml:"allowed_user_ids"`
	FundRulesPath   string        `yaml:"fund_rules_path"`
	JournalDir      string        `yaml:"journal_dir"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// Get loads configuration from the YAML file at path (skipped when the
// file does not exist), then applies environment overrides. The .env file
// in the working directory is loaded first when present.
func Get(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		FundRulesPath:  DefaultFundRulesPath,
		JournalDir:     DefaultJournalDir,
		CacheTTL:       DefaultCacheTTL,
		RequestTimeout: DefaultRequestTimeout,
	}

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// env-only configuration is fine
	case err != nil:
		return Config{}, errors.Wrapf(err, "read config %s", path)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("SPREADSHEET_ID"); v != "" {
		cfg.SpreadsheetID = v
	}
	if v := os.Getenv("GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.CredentialsFile = v
	}
	if v := os.Getenv("ALLOWED_USER_IDS"); v != "" {
		cfg.AllowedUserIDs = parseIDs(v)
	}
	if v := os.Getenv("FUND_RULES_PATH"); v != "" {
		cfg.FundRulesPath = v
	}
	if v := os.Getenv("JOURNAL_DIR"); v != "" {
		cfg.JournalDir = v
	}
}

func parseIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Validate checks the settings without which the bot cannot start.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("telegram token is not set (telegram_token / TELEGRAM_TOKEN)")
	}
	if c.SpreadsheetID == "" {
		return errors.New("spreadsheet id is not set (spreadsheet_id / SPREADSHEET_ID)")
	}
	if c.CredentialsFile == "" {
		return errors.New("google credentials file is not set (credentials_file / GOOGLE_CREDENTIALS_FILE)")
	}
	return nil
}

// Save writes the configuration as YAML; used by the setup wizard.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}
