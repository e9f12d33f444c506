package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client はサービス間および外部APIとのHTTP通信用クライアント。
// タイムアウトの設定を持つ。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// StatusError は2xx以外のレスポンスを表すエラー。
// OAuthプロバイダーのエラー応答を呼び出し元で分類するために、
// ステータスコードとレスポンスボディを保持する。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "http://auth:8090"）を指定する。
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 30*time.Second)
}

// NewWithTimeout はタイムアウトを指定してHTTPクライアントを生成する。
// 外部OAuthプロバイダーへの呼び出しなど、リダイレクトフローの
// レイテンシ要件上30秒では長すぎる場合に使用する。
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", "", bodyReader, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, "", "", nil, result)
}

// GetJSONWithBearer はBearerトークン付きのGETリクエストを送信する。
// OAuthプロバイダーのユーザー情報APIの呼び出しに使用する。
func (c *Client) GetJSONWithBearer(ctx context.Context, path, bearerToken string, result any) error {
	return c.do(ctx, http.MethodGet, path, "", bearerToken, nil, result)
}

// PostForm は指定パスにフォームエンコードされたボディでPOSTリクエストを送信する。
// OAuthプロバイダーのトークンエンドポイント呼び出しに使用する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, result any) error {
	body := strings.NewReader(form.Encode())
	return c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", "", body, result)
}

// do はHTTPリクエストを実行する共通処理。
// 2xx以外のレスポンスは*StatusErrorとして返す。
func (c *Client) do(ctx context.Context, method, path, contentType, bearerToken string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	// コンテキストからユーザーIDを伝播する
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyUserID はコンテキストにユーザーIDを格納するためのキー。
const contextKeyUserID contextKey = "user_id"

// WithUserID はコンテキストにユーザーIDを設定する。
// サービス間通信時にユーザーIDを伝播するために使用する。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}
