package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trellotobeads/config"
	"trellotobeads/models"
	"trellotobeads/utils"
)

const (
	defaultBaseURL = "https://api.trello.com/1"

	// pageLimit は1回のリクエストで取得する最大件数です
	pageLimit = 1000

	// maxRetries は一時的エラーに対する再試行回数です(初回を除く)
	maxRetries = 2
)

// TrelloClient はTrello REST APIとの通信を担当します
// 読み取り専用のエンドポイントのみを使用します
type TrelloClient struct {
	config     *config.Config
	httpClient *http.Client
	limiter    *utils.RateLimiter

	baseURL        string
	retryBase      time.Duration
	acquireTimeout time.Duration
}

// NewTrelloClient は新しいTrelloクライアントを作成します
func NewTrelloClient(cfg *config.Config) *TrelloClient {
	return &TrelloClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.APITimeout) * time.Second,
		},
		limiter:        utils.NewRateLimiter(cfg.RateLimit, cfg.Burst),
		baseURL:        defaultBaseURL,
		retryBase:      time.Second,
		acquireTimeout: 30 * time.Second,
	}
}

// LimiterStatus は内部レートリミッタの現在の状態を返します
func (c *TrelloClient) LimiterStatus() utils.RateLimiterStatus {
	return c.limiter.Status()
}

// GetBoard はボードの基本情報を取得します
func (c *TrelloClient) GetBoard(ctx context.Context, boardID string) (*models.TrelloBoard, error) {
	params := url.Values{}
	params.Set("fields", "name,desc,url")

	var board models.TrelloBoard
	if err := c.getJSON(ctx, fmt.Sprintf("boards/%s", boardID), params, &board); err != nil {
		return nil, fmt.Errorf("ボード取得エラー: %w", err)
	}
	return &board, nil
}

// GetLists はボード上の全リストを取得します
func (c *TrelloClient) GetLists(ctx context.Context, boardID string) ([]models.TrelloList, error) {
	params := url.Values{}
	params.Set("fields", "name,id,pos")

	var lists []models.TrelloList
	if err := c.getJSON(ctx, fmt.Sprintf("boards/%s/lists", boardID), params, &lists); err != nil {
		return nil, fmt.Errorf("リスト取得エラー: %w", err)
	}
	return lists, nil
}

// GetCards はボード上の全カードをページネーションしながら取得します
// 添付ファイル・チェックリスト・カスタムフィールドも同時に取得します
func (c *TrelloClient) GetCards(ctx context.Context, boardID string) ([]models.TrelloCard, error) {
	params := url.Values{}
	params.Set("attachments", "true")
	params.Set("checklists", "all")
	params.Set("members", "true")
	params.Set("customFieldItems", "true")
	params.Set("stickers", "true")
	params.Set("fields", "all")

	raws, err := c.paginated(ctx, fmt.Sprintf("boards/%s/cards", boardID), params)
	if err != nil {
		return nil, fmt.Errorf("カード取得エラー: %w", err)
	}

	cards := make([]models.TrelloCard, 0, len(raws))
	for _, raw := range raws {
		var card models.TrelloCard
		if err := json.Unmarshal(raw, &card); err != nil {
			return nil, fmt.Errorf("カード解析エラー: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// GetCardComments はカードのコメントアクションをページネーションしながら取得します
func (c *TrelloClient) GetCardComments(ctx context.Context, cardID string) ([]models.TrelloComment, error) {
	params := url.Values{}
	params.Set("filter", "commentCard")

	raws, err := c.paginated(ctx, fmt.Sprintf("cards/%s/actions", cardID), params)
	if err != nil {
		return nil, fmt.Errorf("コメント取得エラー: %w", err)
	}

	comments := make([]models.TrelloComment, 0, len(raws))
	for _, raw := range raws {
		var comment models.TrelloComment
		if err := json.Unmarshal(raw, &comment); err != nil {
			return nil, fmt.Errorf("コメント解析エラー: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// ListBoards は認証ユーザーがアクセスできるボードの一覧を取得します
// filterには open / closed / all のいずれかを指定します
func (c *TrelloClient) ListBoards(ctx context.Context, filter string) ([]models.BoardSummary, error) {
	params := url.Values{}
	params.Set("fields", "name,url,closed,dateLastActivity")
	params.Set("filter", filter)

	var boards []models.BoardSummary
	if err := c.getJSON(ctx, "members/me/boards", params, &boards); err != nil {
		return nil, fmt.Errorf("ボード一覧取得エラー: %w", err)
	}
	return boards, nil
}

// ValidateCredentials は認証情報が有効か確認し、自分のアカウント情報を返します
func (c *TrelloClient) ValidateCredentials(ctx context.Context) (*models.Member, error) {
	params := url.Values{}
	params.Set("fields", "username,fullName")

	var member models.Member
	if err := c.getJSON(ctx, "members/me", params, &member); err != nil {
		return nil, fmt.Errorf("認証確認エラー: %w", err)
	}
	return &member, nil
}

// getJSON はリトライ付きでGETリクエストを実行し、レスポンスをoutに展開します
func (c *TrelloClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	body, err := c.requestWithRetry(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンス解析エラー: %w", err)
	}
	return nil
}

// paginated はbeforeカーソルを使って全ページを取得します
// 取得件数がpageLimit未満になった時点で最終ページと判断します
func (c *TrelloClient) paginated(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	before := ""

	for {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("limit", strconv.Itoa(pageLimit))
		if before != "" {
			q.Set("before", before)
		}

		var page []json.RawMessage
		if err := c.getJSON(ctx, path, q, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)

		var last struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(page[len(page)-1], &last); err != nil {
			return nil, fmt.Errorf("ページ末尾のID解析エラー: %w", err)
		}
		before = last.ID

		if len(page) < pageLimit {
			break
		}
	}
	return all, nil
}

// requestWithRetry は一時的エラーに対して指数バックオフ(1秒、2秒)で再試行します
// レートリミッタのトークンは試行のたびに取得し直します
func (c *TrelloClient) requestWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var body []byte
	operation := func() error {
		b, err := c.doRequest(ctx, path, params)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		utils.LogWarn("Trello APIエラー、%.1f秒後に再試行します: %v", wait.Seconds(), err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

// doRequest は1回分のHTTPリクエストを実行します
func (c *TrelloClient) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !c.limiter.Acquire(c.acquireTimeout) {
		return nil, &RateLimitError{}
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("key", c.config.TrelloAPIKey)
	q.Set("token", c.config.TrelloToken)

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPStatus(resp.StatusCode, string(body))
	}
	return body, nil
}
