package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetFromYAML(t *testing.T) {
	path := writeConfig(t, `
telegram_token: tok
spreadsheet_id: sheet123
credentials_file: creds.json
allowed_user_ids: [100, 200]
cache_ttl: 2m
`)
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("ALLOWED_USER_IDS", "")
	cfg, err := Get(path)
	require.NoError(t, err)
	require.Equal(t, "tok", cfg.TelegramToken)
	require.Equal(t, "sheet123", cfg.SpreadsheetID)
	require.Equal(t, []int64{100, 200}, cfg.AllowedUserIDs)
	require.Equal(t, 2*time.Minute, cfg.CacheTTL)
	require.Equal(t, DefaultFundRulesPath, cfg.FundRulesPath)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
telegram_token: tok
spreadsheet_id: sheet123
credentials_file: creds.json
`)
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("ALLOWED_USER_IDS", "1, 2,3")

	cfg, err := Get(path)
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.TelegramToken)
	require.Equal(t, []int64{1, 2, 3}, cfg.AllowedUserIDs)
}

func TestMissingCredentialsFatal(t *testing.T) {
	path := writeConfig(t, `
telegram_token: tok
spreadsheet_id: sheet123
`)
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "")
	_, err := Get(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "credentials")
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("SPREADSHEET_ID", "")
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "")
	t.Setenv("ALLOWED_USER_IDS", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Config{
		TelegramToken:   "tok",
		SpreadsheetID:   "sheet",
		CredentialsFile: "creds.json",
		FundRulesPath:   DefaultFundRulesPath,
		JournalDir:      DefaultJournalDir,
		CacheTTL:        DefaultCacheTTL,
		RequestTimeout:  DefaultRequestTimeout,
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Get(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
