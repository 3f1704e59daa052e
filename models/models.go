package models

import "encoding/json"

// TrelloBoard はTrelloのボードを表します
type TrelloBoard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
	URL  string `json:"url"`
}

// Member はTrelloのユーザーアカウント情報を表します
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// BoardSummary はボード一覧取得時の1件分の情報を表します
type BoardSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	URL              string `json:"url"`
	Closed           bool   `json:"closed"`
	DateLastActivity string `json:"dateLastActivity"`
}

// TrelloList はボード上のリストを表します
type TrelloList struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Pos  float64 `json:"pos"`
}

// TrelloLabel はカードに付与されたラベルを表します
type TrelloLabel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Badges はカードの付随データの件数を表します
type Badges struct {
	Comments    int `json:"comments"`
	Attachments int `json:"attachments"`
	CheckItems  int `json:"checkItems"`
}

// Attachment はカードの添付ファイルを表します
type Attachment struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Bytes int64  `json:"bytes"`
	Date  string `json:"date"`
}

// CheckItem はチェックリストの1項目を表します (stateは"complete"または"incomplete")
type CheckItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	State string  `json:"state"`
	Pos   float64 `json:"pos"`
}

// Checklist はカードのチェックリストを表します
type Checklist struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Pos        float64     `json:"pos"`
	CheckItems []CheckItem `json:"checkItems"`
}

// TrelloCard はカードを表します（関連データを含む完全な形）
type TrelloCard struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Desc             string          `json:"desc"`
	ListID           string          `json:"idList"`
	Pos              float64         `json:"pos"`
	ShortLink        string          `json:"shortLink"`
	ShortURL         string          `json:"shortUrl"`
	URL              string          `json:"url"`
	Closed           bool            `json:"closed"`
	Due              string          `json:"due"`
	DueComplete      bool            `json:"dueComplete"`
	DateLastActivity string          `json:"dateLastActivity"`
	Labels           []TrelloLabel   `json:"labels"`
	Badges           Badges          `json:"badges"`
	Attachments      []Attachment    `json:"attachments"`
	Checklists       []Checklist     `json:"checklists"`
	MemberIDs        []string        `json:"idMembers"`
	CustomFieldItems json.RawMessage `json:"customFieldItems,omitempty"`
	Stickers         json.RawMessage `json:"stickers,omitempty"`
}

// CommentMember はコメント投稿者を表します
type CommentMember struct {
	FullName string `json:"fullName"`
}

// CommentData はコメント本文を表します
type CommentData struct {
	Text string `json:"text"`
}

// TrelloComment はカードへのコメント（commentCardアクション）を表します
// Trello APIは新しい順で返すため、表示時には逆順にします
type TrelloComment struct {
	ID            string        `json:"id"`
	Date          string        `json:"date"`
	Data          CommentData   `json:"data"`
	MemberCreator CommentMember `json:"memberCreator"`
}

// Snapshot はボード全体の取得結果を表します（スナップショットファイルの内容）
type Snapshot struct {
	Board     TrelloBoard                `json:"board"`
	Lists     []TrelloList               `json:"lists"`
	Cards     []TrelloCard               `json:"cards"`
	Comments  map[string][]TrelloComment `json:"comments"`
	Timestamp string                     `json:"timestamp"`
}

// DraftIssue は作成前のbeadsイシューを表します（メモリ上にのみ存在）
type DraftIssue struct {
	CardID      string
	ShortLink   string
	ShortURL    string
	ListName    string
	Title       string
	Description string
	Status      string
	Priority    int
	IssueType   string
	Labels      []string
	ExternalRef string
}

// IssueMapping はTrelloカードIDとbeadsイシューIDのマッピングを表します
type IssueMapping map[string]string

// ReferenceMap はカードのshortLink/shortUrlからbeadsイシューIDへのマッピングを表します
// （第2パスの参照解決で使用）
type ReferenceMap map[string]string

// WriteFailure はイシュー作成に失敗した1件分の記録を表します
type WriteFailure struct {
	CardID string
	Title  string
	Err    error
}
