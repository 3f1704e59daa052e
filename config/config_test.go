package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv はテスト終了後に元へ戻しつつ環境変数を外します
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// isolateEnv はテストをプロセスの環境と.envファイルから切り離します
func isolateEnv(t *testing.T) {
	t.Helper()
	unsetEnv(t,
		"TRELLO_API_KEY", "TRELLO_TOKEN", "TRELLO_BOARD_ID", "TRELLO_BOARD_URL",
		"TRELLO_RATE_LIMIT", "TRELLO_BURST", "TRELLO_API_TIMEOUT",
		"BEADS_DB_PATH", "SNAPSHOT_PATH", "MAX_WORKERS",
	)
	t.Setenv("TRELLO_ENV_FILE", filepath.Join(t.TempDir(), "no.env"))
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRELLO_API_KEY", "key")
	t.Setenv("TRELLO_TOKEN", "token")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.TrelloAPIKey)
	assert.Equal(t, "token", cfg.TrelloToken)
	assert.Equal(t, ".beads/beads.db", cfg.BeadsDBPath)
	assert.Equal(t, "trello_snapshot.json", cfg.SnapshotPath)
	assert.Equal(t, 1, cfg.MaxWorkers)
	assert.Equal(t, float64(10), cfg.RateLimit)
	assert.Equal(t, 10, cfg.Burst)
	assert.Equal(t, 30, cfg.APITimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MAX_WORKERS", "5")
	t.Setenv("TRELLO_RATE_LIMIT", "2.5")
	t.Setenv("TRELLO_BURST", "3")
	t.Setenv("BEADS_DB_PATH", "/data/.beads/beads.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxWorkers)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 3, cfg.Burst)
	assert.Equal(t, "/data/.beads/beads.db", cfg.BeadsDBPath)
}

func TestLoadConfigInvalidNumbersFallBack(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MAX_WORKERS", "たくさん")
	t.Setenv("TRELLO_RATE_LIMIT", "speedy")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.MaxWorkers)
	assert.Equal(t, float64(10), cfg.RateLimit)
}

func TestLoadConfigBoardIDFromURL(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRELLO_BOARD_URL", "https://trello.com/b/Bm0nnz1R/my-board")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "Bm0nnz1R", cfg.BoardID)
}

func TestLoadConfigBoardIDTakesPriority(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRELLO_BOARD_ID", "direct99")
	t.Setenv("TRELLO_BOARD_URL", "https://trello.com/b/other123/x")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "direct99", cfg.BoardID)
}

func TestLoadConfigInvalidBoardURL(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRELLO_BOARD_URL", "https://example.com/not-a-board")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigEnvFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envPath, []byte("TRELLO_API_KEY=fromfile\nTRELLO_TOKEN=filetoken\n"), 0o644))
	t.Setenv("TRELLO_ENV_FILE", envPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.TrelloAPIKey)
	assert.Equal(t, "filetoken", cfg.TrelloToken)
}

func TestLoadConfigEnvFileDoesNotOverride(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envPath, []byte("TRELLO_API_KEY=fromfile\n"), 0o644))
	t.Setenv("TRELLO_ENV_FILE", envPath)
	t.Setenv("TRELLO_API_KEY", "fromenv")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.TrelloAPIKey)
}

func TestExtractBoardID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"httpsつき", "https://trello.com/b/Bm0nnz1R/my-board", "Bm0nnz1R", false},
		{"プロトコルなし", "trello.com/b/abc123", "abc123", false},
		{"末尾パスなし", "https://trello.com/b/xYz99", "xYz99", false},
		{"ボードURLではない", "https://example.com/b/abc", "", true},
		{"カードURL", "https://trello.com/c/abc123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBoardID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRELLO_API_KEY")

	cfg.TrelloAPIKey = "k"
	cfg.TrelloToken = "t"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestValidateBoard(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateBoard()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRELLO_BOARD_ID")

	cfg.BoardID = "abc"
	assert.NoError(t, cfg.ValidateBoard())
}
