package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nao1215/authhub/pkg/httpclient"
	"github.com/nao1215/authhub/pkg/token"
)

// ProviderNaver はNaver OAuth2プロバイダーの識別子。
const ProviderNaver = "naver"

const (
	// naverAuthHost はNaverの認可・トークンエンドポイントのホスト。
	naverAuthHost = "https://nid.naver.com"
	// naverAPIHost はNaverのユーザー情報APIのホスト。
	naverAPIHost = "https://openapi.naver.com"
	// naverTokenPath はトークン交換エンドポイントのパス。
	naverTokenPath = "/oauth2.0/token"
	// naverUserInfoPath はユーザー情報エンドポイントのパス。
	naverUserInfoPath = "/v1/nid/me"
	// fallbackNickname はnicknameもnameも取得できない場合の表示名。
	// Naverのユーザー向け文言に合わせて韓国語（「Naverユーザー」の意）。
	fallbackNickname = "네이버 사용자"
	// providerTimeout はプロバイダーへの外部呼び出しのタイムアウト。
	// リダイレクトベースのフローでは応答遅延がそのままブラウザの待ち時間に
	// なるため、デフォルトの30秒より短くする。
	providerTimeout = 10 * time.Second
)

// ExchangeError はAuthorization Codeのトークン交換失敗を表す。
// 診断のためにプロバイダー側のステータスとレスポンスボディを保持する。
// Authorization Codeは一度しか使用できないため、リトライは行わない。
type ExchangeError struct {
	// StatusCode はプロバイダーが返したHTTPステータス。通信自体に失敗した場合は0。
	StatusCode int
	// Body はプロバイダーのレスポンスボディまたは失敗理由。
	Body string
}

// Error はerrorインターフェースを実装する。
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("Naverトークン交換に失敗: status=%d, body=%s", e.StatusCode, e.Body)
}

// UserInfoError はユーザー情報取得の失敗を表す。
type UserInfoError struct {
	// StatusCode はプロバイダーが返したHTTPステータス。通信自体に失敗した場合は0。
	StatusCode int
	// Body はプロバイダーのレスポンスボディまたは失敗理由。
	Body string
}

// Error はerrorインターフェースを実装する。
func (e *UserInfoError) Error() string {
	return fmt.Sprintf("Naverユーザー情報取得に失敗: status=%d, body=%s", e.StatusCode, e.Body)
}

// ErrMalformedUserInfo はユーザー情報レスポンスが期待する形式でないことを表す。
var ErrMalformedUserInfo = errors.New("Naverユーザー情報のレスポンス形式が不正です")

// NaverTokenResponse はNaverトークンエンドポイントのレスポンス。
// 交換処理の間だけ存在する一時データであり、そのまま永続化してはならない。
type NaverTokenResponse struct {
	// AccessToken はNaver APIへのアクセストークン。
	AccessToken string `json:"access_token"`
	// RefreshToken はアクセストークン再発行用のトークン。省略されることがある。
	RefreshToken string `json:"refresh_token"`
	// TokenType はトークン種別（通常 "bearer"）。
	TokenType string `json:"token_type"`
	// ExpiresIn はアクセストークンの有効期間（秒）。Naverは文字列で返す。
	ExpiresIn json.Number `json:"expires_in"`
	// Error はエラーコード。NaverはHTTP 200でエラーを返すことがある。
	Error string `json:"error"`
	// ErrorDescription はエラーの説明。
	ErrorDescription string `json:"error_description"`
}

// NaverClient はNaver OAuth2 APIへのアウトバウンド呼び出しを行う。
// トークン交換とユーザー情報取得の2つのHTTP呼び出しと、
// プロバイダー固有のペイロードの正規化を担当する。
type NaverClient struct {
	// clientID はNaverアプリケーションのクライアントID。
	clientID string
	// clientSecret はNaverアプリケーションのクライアントシークレット。
	clientSecret string
	// redirectURI はNaverに登録済みのコールバックURI。
	redirectURI string
	// authorizeURL は認可画面のURL。
	authorizeURL string
	// authClient はトークンエンドポイント用のHTTPクライアント。
	authClient *httpclient.Client
	// apiClient はユーザー情報エンドポイント用のHTTPクライアント。
	apiClient *httpclient.Client
}

// NewNaverClient は本番のNaverエンドポイントを使用するクライアントを生成する。
func NewNaverClient(clientID, clientSecret, redirectURI string) *NaverClient {
	return NewNaverClientWithHosts(clientID, clientSecret, redirectURI, naverAuthHost, naverAPIHost)
}

// NewNaverClientWithHosts はエンドポイントのホストを指定してクライアントを生成する。
// テストでモックサーバーに差し替えるために使用する。
func NewNaverClientWithHosts(clientID, clientSecret, redirectURI, authHost, apiHost string) *NaverClient {
	return &NaverClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		authorizeURL: authHost + "/oauth2.0/authorize",
		authClient:   httpclient.NewWithTimeout(authHost, providerTimeout),
		apiClient:    httpclient.NewWithTimeout(apiHost, providerTimeout),
	}
}

// Configured はクライアントID・リダイレクトURIが設定済みかどうかを返す。
func (c *NaverClient) Configured() bool {
	return c.clientID != "" && c.redirectURI != ""
}

// AuthCodeURL はNaverの認可画面のURLを生成する。
// フロントエンドにクライアントIDを直接公開せずに認証を開始させるために使う。
func (c *NaverClient) AuthCodeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	return c.authorizeURL + "?" + params.Encode()
}

// ExchangeCode はAuthorization Codeをアクセストークンに交換する。
// 通信失敗・2xx以外・エラー応答・アクセストークン欠落はすべて
// *ExchangeErrorとして返す。コードは一度しか使えないためリトライしない。
func (c *NaverClient) ExchangeCode(ctx context.Context, code, state string) (*NaverTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("code", code)
	form.Set("state", state)

	var resp NaverTokenResponse
	if err := c.authClient.PostForm(ctx, naverTokenPath, form, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, &ExchangeError{StatusCode: statusErr.StatusCode, Body: statusErr.Body}
		}
		return nil, &ExchangeError{StatusCode: 0, Body: err.Error()}
	}

	// NaverはHTTP 200でもボディのerrorフィールドで失敗を通知することがある
	if resp.Error != "" {
		return nil, &ExchangeError{StatusCode: 200, Body: fmt.Sprintf("%s: %s", resp.Error, resp.ErrorDescription)}
	}
	if resp.AccessToken == "" {
		return nil, &ExchangeError{StatusCode: 200, Body: "レスポンスにaccess_tokenが含まれていません"}
	}
	return &resp, nil
}

// FetchUserInfo はアクセストークンでNaverのユーザー情報を取得する。
// プロバイダー固有の生ペイロードをそのまま返す。失敗は*UserInfoError。
func (c *NaverClient) FetchUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	var raw map[string]any
	if err := c.apiClient.GetJSONWithBearer(ctx, naverUserInfoPath, accessToken, &raw); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, &UserInfoError{StatusCode: statusErr.StatusCode, Body: statusErr.Body}
		}
		return nil, &UserInfoError{StatusCode: 0, Body: err.Error()}
	}
	return raw, nil
}

// ExtractUserInfo はNaverの生ペイロードを正規化済みユーザー情報に変換する。
// Naver APIのレスポンス構造: { "resultcode": "00", "message": "success", "response": { ... } }
// responseオブジェクトが無い場合はErrMalformedUserInfoを返す。
// 欠損フィールドは空文字列またはデフォルト表示名で埋める（nullにはしない）。
func ExtractUserInfo(raw map[string]any) (token.Identity, error) {
	response, ok := raw["response"].(map[string]any)
	if !ok {
		return token.Identity{}, ErrMalformedUserInfo
	}

	nickname := stringField(response, "nickname")
	if nickname == "" {
		nickname = stringField(response, "name")
	}
	if nickname == "" {
		nickname = fallbackNickname
	}

	return token.Identity{
		UserID:   stringField(response, "id"),
		Nickname: nickname,
		Email:    stringField(response, "email"),
		// Naverはメール確認状態を提供しないためtrue固定。
		// 検証済みの主張として扱ってはならない。
		EmailVerified: true,
		ProfileImage:  stringField(response, "profile_image"),
	}, nil
}

// stringField はマップから文字列フィールドを取得する。欠損時は空文字列。
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
