package api

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError はTrello APIが返したHTTPエラーを表します
// 専用型に分類されないステータスコードはすべてこの型になります
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("APIエラー (ステータス %d): %s", e.StatusCode, truncateBody(e.Body))
}

// AuthError は認証失敗(401/403)を表します
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("認証エラー (ステータス %d): APIキーとトークンを確認してください", e.StatusCode)
}

// NotFoundError はリソースが存在しない(404)ことを表します
type NotFoundError struct {
	StatusCode int
	Body       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("リソースが見つかりません (ステータス %d): %s", e.StatusCode, truncateBody(e.Body))
}

// RateLimitError はレート制限超過(429)またはローカルレートリミッタの
// トークン取得タイムアウトを表します
type RateLimitError struct {
	StatusCode int
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.StatusCode == 0 {
		return "レート制限エラー: トークン取得がタイムアウトしました"
	}
	return fmt.Sprintf("レート制限エラー (ステータス %d)", e.StatusCode)
}

// ServerError はTrello側のサーバーエラー(500/502/503/504)を表します
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("サーバーエラー (ステータス %d): %s", e.StatusCode, truncateBody(e.Body))
}

// NetworkError はHTTPレスポンス以前の転送エラー(タイムアウト・接続失敗など)を表します
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ネットワークエラー: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError はbeadsレコードの事前検証の失敗を表します
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("検証エラー: %s: %s", e.Field, e.Message)
}

// BeadsError はbd CLIコマンドの実行失敗を表します
type BeadsError struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

func (e *BeadsError) Error() string {
	msg := fmt.Sprintf("bdコマンドエラー (終了コード %d): %s", e.ExitCode, e.Command)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += fmt.Sprintf(": %s", truncateBody(stderr))
	}
	return msg
}

// ClassifyHTTPStatus はHTTPステータスコードを対応するエラー型に変換します
// どのコードでも必ずいずれかの型を返します
func ClassifyHTTPStatus(statusCode int, body string) error {
	switch statusCode {
	case 401, 403:
		return &AuthError{StatusCode: statusCode, Body: body}
	case 404:
		return &NotFoundError{StatusCode: statusCode, Body: body}
	case 429:
		return &RateLimitError{StatusCode: statusCode, Body: body}
	case 500, 502, 503, 504:
		return &ServerError{StatusCode: statusCode, Body: body}
	default:
		return &APIError{StatusCode: statusCode, Body: body}
	}
}

// IsTransient はリトライで回復の見込みがあるエラーかどうかを判定します
// 分類されないエラーはすべて永続扱い(false)です
func IsTransient(err error) bool {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200] + "..."
	}
	return body
}
