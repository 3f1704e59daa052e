package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"trellotobeads/models"
)

// staleThreshold はこの期間更新のないカードを「忘れられた作業」とみなす境界です
const staleThreshold = 90 * 24 * time.Hour

// AttachmentRef は添付ファイル経由で解決された別課題への参照です
type AttachmentRef struct {
	Name    string
	BeadsID string
}

// RecordBuilder はTrelloカードをbeads課題の下書きに変換します
type RecordBuilder struct {
	now func() time.Time
}

// NewRecordBuilder は新しいビルダーを作成します
func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{now: time.Now}
}

// Build はカード1枚を下書きレコードに変換します
// cardsInListは同じリストの全カードで、位置による優先度計算に使います
func (b *RecordBuilder) Build(card *models.TrelloCard, listName, status string, cardsInList []models.TrelloCard, comments []models.TrelloComment) *models.DraftIssue {
	labels := []string{fmt.Sprintf("list:%s", listName)}
	for _, label := range card.Labels {
		if label.Name != "" {
			labels = append(labels, fmt.Sprintf("trello-label:%s", label.Name))
		}
	}

	return &models.DraftIssue{
		CardID:      card.ID,
		ShortLink:   card.ShortLink,
		ShortURL:    card.ShortURL,
		ListName:    listName,
		Title:       card.Name,
		Description: ComposeBody(card.Desc, card.Checklists, card.Attachments, nil, comments),
		Status:      status,
		Priority:    b.PriorityFromPosition(card, cardsInList),
		IssueType:   "task",
		Labels:      labels,
		ExternalRef: fmt.Sprintf("trello:%s", card.ShortLink),
	}
}

// PriorityFromPosition は位置と更新日時から優先度を決めます
// リスト先頭の1〜2枚はP1、最下位はP3、それ以外はP2が基本で、
// 90日以上更新のないカードはP1へ引き上げます
func (b *RecordBuilder) PriorityFromPosition(card *models.TrelloCard, cardsInList []models.TrelloCard) int {
	basePriority := 2

	if len(cardsInList) > 1 {
		sorted := make([]models.TrelloCard, len(cardsInList))
		copy(sorted, cardsInList)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Pos < sorted[j].Pos
		})

		index := -1
		for i := range sorted {
			if sorted[i].ID == card.ID {
				index = i
				break
			}
		}

		switch {
		case index < 0:
			basePriority = 2
		case index <= 1:
			basePriority = 1
		case index == len(sorted)-1:
			basePriority = 3
		default:
			basePriority = 2
		}
	}

	// 長期間動きのないカードは掘り起こす
	if basePriority > 1 && card.DateLastActivity != "" {
		if lastActivity, err := time.Parse(time.RFC3339, card.DateLastActivity); err == nil {
			if b.now().Sub(lastActivity) >= staleThreshold {
				return 1
			}
		}
	}
	return basePriority
}

// ComposeBody は課題本文をMarkdownで組み立てます
// attachmentRefsは参照解決後の再構築時のみ渡されます
func ComposeBody(desc string, checklists []models.Checklist, attachments []models.Attachment, attachmentRefs []AttachmentRef, comments []models.TrelloComment) string {
	var parts []string

	if desc != "" {
		parts = append(parts, desc)
	}

	if len(checklists) > 0 {
		parts = append(parts, "\n## Checklists\n")
		for _, checklist := range checklists {
			parts = append(parts, fmt.Sprintf("### %s\n", checklist.Name))
			for _, item := range checklist.CheckItems {
				mark := "☐"
				if item.State == "complete" {
					mark = "✓"
				}
				parts = append(parts, fmt.Sprintf("- [%s] %s", mark, item.Name))
			}
			parts = append(parts, "")
		}
	}

	if len(attachments) > 0 {
		parts = append(parts, "\n## Attachments\n")
		for _, att := range attachments {
			parts = append(parts, fmt.Sprintf("- [%s](%s) (%d bytes)", att.Name, att.URL, att.Bytes))
		}
		parts = append(parts, "")
	}

	if len(attachmentRefs) > 0 {
		parts = append(parts, "\n## Related Issues (from attachments)\n")
		for _, ref := range attachmentRefs {
			parts = append(parts, fmt.Sprintf("- **%s**: See %s\n", ref.Name, ref.BeadsID))
		}
	}

	if len(comments) > 0 {
		parts = append(parts, "\n## Comments\n")
		// Trello APIは新しい順で返すので、古い順に並べ直す
		for i := len(comments) - 1; i >= 0; i-- {
			comment := comments[i]
			author := comment.MemberCreator.FullName
			if author == "" {
				author = "Unknown"
			}
			date := comment.Date
			if len(date) > 10 {
				date = date[:10]
			}
			parts = append(parts, fmt.Sprintf("**%s** (%s):", author, date))
			parts = append(parts, fmt.Sprintf("> %s", comment.Data.Text))
			parts = append(parts, "")
		}
	}

	return strings.Join(parts, "\n")
}
