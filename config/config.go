package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Trello API設定
	TrelloAPIKey string
	TrelloToken  string
	BoardID      string
	RateLimit    float64
	Burst        int
	APITimeout   int

	// beads設定
	BeadsDBPath string

	// 変換動作設定
	SnapshotPath string
	MaxWorkers   int

	// 実行モード(コマンドラインフラグから設定)
	DryRun        bool
	Refetch       bool
	StatusMapping string
}

// boardURLPattern はTrelloボードURLからボードIDを取り出すパターンです
var boardURLPattern = regexp.MustCompile(`trello\.com/b/([a-zA-Z0-9]+)`)

// LoadConfig は環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込む(既存の環境変数は上書きしない)
	_ = godotenv.Load(getEnvWithDefault("TRELLO_ENV_FILE", ".env"))

	boardID := os.Getenv("TRELLO_BOARD_ID")
	if boardID == "" {
		if boardURL := os.Getenv("TRELLO_BOARD_URL"); boardURL != "" {
			extracted, err := ExtractBoardID(boardURL)
			if err != nil {
				return nil, err
			}
			boardID = extracted
		}
	}

	config := &Config{
		TrelloAPIKey: os.Getenv("TRELLO_API_KEY"),
		TrelloToken:  os.Getenv("TRELLO_TOKEN"),
		BoardID:      boardID,
		RateLimit:    getEnvAsFloatWithDefault("TRELLO_RATE_LIMIT", 10),
		Burst:        getEnvAsIntWithDefault("TRELLO_BURST", 10),
		APITimeout:   getEnvAsIntWithDefault("TRELLO_API_TIMEOUT", 30),
		BeadsDBPath:  getEnvWithDefault("BEADS_DB_PATH", ".beads/beads.db"),
		SnapshotPath: getEnvWithDefault("SNAPSHOT_PATH", "trello_snapshot.json"),
		MaxWorkers:   getEnvAsIntWithDefault("MAX_WORKERS", 1),
	}

	return config, nil
}

// ValidateCredentials はAPI認証情報が揃っているか確認します
func (c *Config) ValidateCredentials() error {
	if c.TrelloAPIKey == "" || c.TrelloToken == "" {
		return fmt.Errorf("Trello認証情報が設定されていません。" +
			"TRELLO_API_KEY と TRELLO_TOKEN を環境変数または.envファイルで指定してください " +
			"(APIキーは https://trello.com/app-key で取得できます)")
	}
	return nil
}

// ValidateBoard はボードの指定が揃っているか確認します
func (c *Config) ValidateBoard() error {
	if c.BoardID == "" {
		return fmt.Errorf("ボードが指定されていません。" +
			"TRELLO_BOARD_ID または TRELLO_BOARD_URL を指定してください " +
			"(例: TRELLO_BOARD_URL=https://trello.com/b/Bm0nnz1R/my-board)")
	}
	return nil
}

// ExtractBoardID はボードURLからボードIDを取り出します
func ExtractBoardID(boardURL string) (string, error) {
	match := boardURLPattern.FindStringSubmatch(boardURL)
	if match == nil {
		return "", fmt.Errorf("ボードURLからIDを抽出できませんでした: %s", boardURL)
	}
	return match[1], nil
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// デフォルト値付きで環境変数を整数として取得
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// デフォルト値付きで環境変数を浮動小数点数として取得
func getEnvAsFloatWithDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
