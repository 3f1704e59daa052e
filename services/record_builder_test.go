package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellotobeads/models"
)

func TestBuildBasicDraft(t *testing.T) {
	builder := NewRecordBuilder()
	card := &models.TrelloCard{
		ID:        "c1",
		Name:      "ログイン画面の実装",
		Desc:      "認証フローを整理する",
		ShortLink: "xYz12345",
		ShortURL:  "https://trello.com/c/xYz12345",
		Labels: []models.TrelloLabel{
			{Name: "bug", Color: "red"},
			{Name: "", Color: "green"},
		},
	}

	draft := builder.Build(card, "To Do", "open", nil, nil)

	assert.Equal(t, "c1", draft.CardID)
	assert.Equal(t, "ログイン画面の実装", draft.Title)
	assert.Equal(t, "認証フローを整理する", draft.Description)
	assert.Equal(t, "open", draft.Status)
	assert.Equal(t, "task", draft.IssueType)
	assert.Equal(t, 2, draft.Priority)
	assert.Equal(t, "trello:xYz12345", draft.ExternalRef)
	// 名前のないラベルは落とす
	assert.Equal(t, []string{"list:To Do", "trello-label:bug"}, draft.Labels)
}

func TestComposeBodyFull(t *testing.T) {
	checklists := []models.Checklist{
		{
			Name: "手順",
			CheckItems: []models.CheckItem{
				{Name: "設計", State: "complete"},
				{Name: "実装", State: "incomplete"},
			},
		},
	}
	attachments := []models.Attachment{
		{Name: "notes.pdf", URL: "https://example.com/notes.pdf", Bytes: 2048},
	}
	// Trello APIの順序(新しい順)で渡す
	comments := []models.TrelloComment{
		{Date: "2024-03-01T10:00:00.000Z", Data: models.CommentData{Text: "新しいコメント"}, MemberCreator: models.CommentMember{FullName: "Tanaka"}},
		{Date: "2024-02-01T10:00:00.000Z", Data: models.CommentData{Text: "古いコメント"}, MemberCreator: models.CommentMember{FullName: "Suzuki"}},
	}

	body := ComposeBody("説明文", checklists, attachments, nil, comments)

	expected := strings.Join([]string{
		"説明文",
		"\n## Checklists\n",
		"### 手順\n",
		"- [✓] 設計",
		"- [☐] 実装",
		"",
		"\n## Attachments\n",
		"- [notes.pdf](https://example.com/notes.pdf) (2048 bytes)",
		"",
		"\n## Comments\n",
		"**Suzuki** (2024-02-01):",
		"> 古いコメント",
		"",
		"**Tanaka** (2024-03-01):",
		"> 新しいコメント",
		"",
	}, "\n")
	assert.Equal(t, expected, body)
}

func TestComposeBodyEmptyDesc(t *testing.T) {
	attachments := []models.Attachment{
		{Name: "a.png", URL: "https://example.com/a.png", Bytes: 10},
	}
	body := ComposeBody("", nil, attachments, nil, nil)
	assert.True(t, strings.HasPrefix(body, "\n## Attachments\n"))
	assert.NotContains(t, body, "## Checklists")
	assert.NotContains(t, body, "## Comments")
}

func TestComposeBodyAttachmentRefs(t *testing.T) {
	refs := []AttachmentRef{
		{Name: "関連カード", BeadsID: "tb-7"},
	}
	body := ComposeBody("本文", nil, nil, refs, nil)
	assert.Contains(t, body, "\n## Related Issues (from attachments)\n")
	assert.Contains(t, body, "- **関連カード**: See tb-7\n")
}

func TestComposeBodyCommentDefaults(t *testing.T) {
	comments := []models.TrelloComment{
		{Data: models.CommentData{Text: "作者不明"}},
	}
	body := ComposeBody("", nil, nil, nil, comments)
	assert.Contains(t, body, "**Unknown** ():")
	assert.Contains(t, body, "> 作者不明")
}

func makeListCards(n int) []models.TrelloCard {
	cards := make([]models.TrelloCard, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, models.TrelloCard{
			ID:  fmt.Sprintf("c%d", i),
			Pos: float64((i + 1) * 100),
		})
	}
	return cards
}

func TestPriorityFromPosition(t *testing.T) {
	builder := NewRecordBuilder()
	cards := makeListCards(5)

	tests := []struct {
		name string
		card *models.TrelloCard
		want int
	}{
		{"先頭はP1", &cards[0], 1},
		{"2番目もP1", &cards[1], 1},
		{"中間はP2", &cards[2], 2},
		{"最下位はP3", &cards[4], 3},
		{"リストに見つからない場合はP2", &models.TrelloCard{ID: "zzz"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, builder.PriorityFromPosition(tt.card, cards))
		})
	}
}

func TestPrioritySingleCard(t *testing.T) {
	builder := NewRecordBuilder()
	cards := makeListCards(1)
	assert.Equal(t, 2, builder.PriorityFromPosition(&cards[0], cards))
}

func TestPriorityTwoCardsBothTop(t *testing.T) {
	builder := NewRecordBuilder()
	cards := makeListCards(2)
	assert.Equal(t, 1, builder.PriorityFromPosition(&cards[0], cards))
	assert.Equal(t, 1, builder.PriorityFromPosition(&cards[1], cards))
}

func TestPriorityRecencyBoost(t *testing.T) {
	builder := NewRecordBuilder()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	builder.now = func() time.Time { return now }

	cards := makeListCards(5)

	// 90日以上更新がない中間カードはP1へ引き上げ
	stale := cards[2]
	stale.DateLastActivity = now.Add(-100 * 24 * time.Hour).Format(time.RFC3339)
	assert.Equal(t, 1, builder.PriorityFromPosition(&stale, cards))

	// 最下位カードも引き上げ対象
	staleBottom := cards[4]
	staleBottom.DateLastActivity = now.Add(-91 * 24 * time.Hour).Format(time.RFC3339)
	assert.Equal(t, 1, builder.PriorityFromPosition(&staleBottom, cards))

	// 最近更新されたカードはそのまま
	recent := cards[2]
	recent.DateLastActivity = now.Add(-10 * 24 * time.Hour).Format(time.RFC3339)
	assert.Equal(t, 2, builder.PriorityFromPosition(&recent, cards))

	// 日付が壊れている場合は引き上げなし
	broken := cards[2]
	broken.DateLastActivity = "昨日"
	assert.Equal(t, 2, builder.PriorityFromPosition(&broken, cards))
}

func TestBuildWithCommentsAndPosition(t *testing.T) {
	builder := NewRecordBuilder()
	cards := makeListCards(3)
	card := cards[0]
	card.Name = "最優先タスク"
	card.ShortLink = "abc123"

	comments := []models.TrelloComment{
		{Date: "2024-01-05T00:00:00.000Z", Data: models.CommentData{Text: "メモ"}, MemberCreator: models.CommentMember{FullName: "Sato"}},
	}

	draft := builder.Build(&card, "Doing", "in_progress", cards, comments)
	require.NotNil(t, draft)
	assert.Equal(t, 1, draft.Priority)
	assert.Equal(t, "in_progress", draft.Status)
	assert.Contains(t, draft.Description, "## Comments")
	assert.Contains(t, draft.Description, "**Sato** (2024-01-05):")
}
