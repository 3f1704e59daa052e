package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trellotobeads/models"
	"trellotobeads/utils"
)

// SnapshotStore はボードスナップショットの保存と読み込みを担当します
// スナップショットがあればAPIへの再アクセスなしで変換をやり直せます
type SnapshotStore struct {
	path string
	now  func() time.Time
}

// NewSnapshotStore は指定パスを使うストアを作成します
// pathが空の場合、保存と読み込みは何もしません
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path, now: time.Now}
}

// Path はスナップショットファイルのパスを返します
func (s *SnapshotStore) Path() string {
	return s.path
}

// Load は既存スナップショットを読み込みます
// ファイルが無い場合や壊れている場合は (nil, false) を返し、呼び出し側に
// API再取得を促します
func (s *SnapshotStore) Load() (*models.Snapshot, bool) {
	if s.path == "" {
		return nil, false
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		utils.LogWarn("スナップショットが壊れているため再取得します (%s): %v", s.path, err)
		return nil, false
	}
	if snapshot.Board.ID == "" {
		utils.LogWarn("スナップショットにボード情報がないため再取得します (%s)", s.path)
		return nil, false
	}
	return &snapshot, true
}

// Save はスナップショットをインデント付きJSONで保存します
func (s *SnapshotStore) Save(snapshot *models.Snapshot) error {
	if s.path == "" {
		return nil
	}

	snapshot.Timestamp = s.now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("スナップショット変換エラー: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("スナップショット保存先作成エラー: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("スナップショット保存エラー: %w", err)
	}
	return nil
}
