package services

import (
	"fmt"
	"regexp"
	"strings"

	"trellotobeads/models"
)

// trelloCardURLPattern はTrelloカードURLの検出パターンです
// https://trello.com/c/abc123 と trello.com/c/abc123/card-name の両方に一致します
var trelloCardURLPattern = regexp.MustCompile(`(?:https?://)?trello\.com/c/([a-zA-Z0-9]+)(?:/[^\s\)]*)?`)

// TextResolution はテキスト1件分の参照解決の結果です
type TextResolution struct {
	Text          string
	Changed       bool
	ReferencedIDs []string
	BrokenURLs    []string
}

// CardResolution はカード1枚分の参照解決の結果です
// ReferencedIDsには自分自身への参照は含まれません
type CardResolution struct {
	Description    string
	Comments       []models.TrelloComment
	AttachmentRefs []AttachmentRef
	Changed        bool
	ReferencedIDs  []string
	BrokenURLs     []string
}

// ReferenceResolver は本文中のTrelloカードURLをbeads課題参照に置き換えます
type ReferenceResolver struct {
	refMap models.ReferenceMap
}

// NewReferenceResolver は参照マップから新しいリゾルバを作成します
// refMapのキーはカードのshortLinkとshortUrlです
func NewReferenceResolver(refMap models.ReferenceMap) *ReferenceResolver {
	return &ReferenceResolver{refMap: refMap}
}

// ResolveText はテキスト中のTrelloカードURLを「See <課題ID>」表記へ置き換えます
// 変換対象に含まれないカードへのURLはそのまま残し、BrokenURLsに記録します
func (r *ReferenceResolver) ResolveText(text string) TextResolution {
	res := TextResolution{Text: text}
	seen := map[string]bool{}

	for _, match := range trelloCardURLPattern.FindAllStringSubmatch(text, -1) {
		fullURL := match[0]
		shortLink := match[1]

		targetID, ok := r.refMap[shortLink]
		if !ok {
			res.BrokenURLs = append(res.BrokenURLs, fullURL)
			continue
		}

		res.Text = strings.ReplaceAll(res.Text, fullURL, fmt.Sprintf("See %s", targetID))
		res.Changed = true
		if !seen[targetID] {
			seen[targetID] = true
			res.ReferencedIDs = append(res.ReferencedIDs, targetID)
		}
	}
	return res
}

// ResolveCard はカードの本文・コメント・添付ファイルの参照をまとめて解決します
func (r *ReferenceResolver) ResolveCard(selfBeadsID string, card *models.TrelloCard, comments []models.TrelloComment) CardResolution {
	out := CardResolution{}
	seen := map[string]bool{}
	collect := func(ids []string) {
		for _, id := range ids {
			if id == selfBeadsID || seen[id] {
				continue
			}
			seen[id] = true
			out.ReferencedIDs = append(out.ReferencedIDs, id)
		}
	}

	descRes := r.ResolveText(card.Desc)
	out.Description = descRes.Text
	out.Changed = descRes.Changed
	collect(descRes.ReferencedIDs)
	out.BrokenURLs = append(out.BrokenURLs, descRes.BrokenURLs...)

	for _, comment := range comments {
		commentRes := r.ResolveText(comment.Data.Text)
		resolved := comment
		resolved.Data.Text = commentRes.Text
		out.Comments = append(out.Comments, resolved)
		if commentRes.Changed {
			out.Changed = true
		}
		collect(commentRes.ReferencedIDs)
		out.BrokenURLs = append(out.BrokenURLs, commentRes.BrokenURLs...)
	}

	for _, att := range card.Attachments {
		match := trelloCardURLPattern.FindStringSubmatch(att.URL)
		if match == nil {
			continue
		}
		targetID, ok := r.refMap[match[1]]
		if !ok {
			out.BrokenURLs = append(out.BrokenURLs, match[0])
			continue
		}
		out.AttachmentRefs = append(out.AttachmentRefs, AttachmentRef{Name: att.Name, BeadsID: targetID})
		out.Changed = true
		collect([]string{targetID})
	}

	return out
}
