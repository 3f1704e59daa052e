package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// statusRule は1つのステータスカテゴリと対応キーワードの組です
type statusRule struct {
	status   string
	keywords []string
}

// defaultRules は優先順位つきの分類ルールを返します(先頭のカテゴリほど強い)
func defaultRules() []statusRule {
	return []statusRule{
		{"closed", []string{"done", "completed", "closed", "archived", "finished"}},
		{"blocked", []string{"blocked", "waiting", "waiting on", "on hold", "paused"}},
		{"deferred", []string{"deferred", "someday", "maybe", "later", "backlog", "future"}},
		{"in_progress", []string{"doing", "in progress", "wip", "active", "current", "working"}},
		{"open", []string{"todo", "to do", "planned", "ready"}},
	}
}

// StatusMapper はTrelloのリスト名をbeadsのステータスに分類します
type StatusMapper struct {
	rules []statusRule
}

// NewStatusMapper は既定ルールのマッパーを作成します
func NewStatusMapper() *StatusMapper {
	return &StatusMapper{rules: defaultRules()}
}

// NewStatusMapperFromFile は既定ルールに上書きファイルを適用したマッパーを作成します
// pathが空の場合は既定ルールのみを使用します
func NewStatusMapperFromFile(path string) (*StatusMapper, error) {
	mapper := NewStatusMapper()
	if path == "" {
		return mapper, nil
	}
	if err := mapper.loadOverride(path); err != nil {
		return nil, err
	}
	return mapper, nil
}

// Classify はリスト名からステータスを決定します
// キーワードの部分一致(大文字小文字を区別しない)で判定し、どれにも
// 一致しない場合は open を返します
func (m *StatusMapper) Classify(listName string) string {
	lower := strings.ToLower(listName)
	for _, rule := range m.rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.status
			}
		}
	}
	return "open"
}

// loadOverride はJSONまたはYAML形式の上書きファイルを読み込みます
// ファイルに含まれるカテゴリのみキーワードを差し替えます(部分マージ)
func (m *StatusMapper) loadOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ステータスマッピングファイル読み込みエラー: %w", err)
	}

	var override map[string][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return fmt.Errorf("ステータスマッピング解析エラー (%s): %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return fmt.Errorf("ステータスマッピング解析エラー (%s): %w", path, err)
		}
	default:
		return fmt.Errorf("未対応のステータスマッピング形式です (.json/.yaml/.ymlのみ): %s", path)
	}
	return m.merge(override)
}

func (m *StatusMapper) merge(override map[string][]string) error {
	for category, keywords := range override {
		normalized := make([]string, 0, len(keywords))
		for _, keyword := range keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				return fmt.Errorf("カテゴリ %s に空のキーワードは指定できません", category)
			}
			normalized = append(normalized, keyword)
		}

		found := false
		for i := range m.rules {
			if m.rules[i].status == category {
				m.rules[i].keywords = normalized
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("不明なステータスカテゴリです: %s", category)
		}
	}
	return nil
}
