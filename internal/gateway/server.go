package gateway

import (
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/authhub/pkg/middleware"
)

// Server はAPI GatewayサービスのHTTPサーバー。
// 外部からアクセス可能な唯一のサービスであり、リクエストを
// 内部サービス（auth / user）に振り分ける。認証処理自体は持たない。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// serviceURLs は内部サービスのURL。
	serviceURLs serviceURLConfig
	// proxyClient はプロキシ用のHTTPクライアント。
	// リダイレクトを追跡せず、302をそのままブラウザに返す。
	proxyClient *http.Client
}

// serviceURLConfig は内部サービスのURL設定。
type serviceURLConfig struct {
	Auth string
	User string
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(port string) *Server {
	urls := serviceURLConfig{
		Auth: getEnvOr("AUTH_URL", "http://localhost:8090"),
		User: getEnvOr("USER_URL", "http://localhost:8091"),
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		serviceURLs: urls,
		proxyClient: newProxyClient(),
	}
	s.setupRoutes()

	return s
}

// newProxyClient はプロキシ用HTTPクライアントを生成する。
// authサービスのコールバックが返す302リダイレクトを追跡すると
// フロントエンドへのリダイレクトがGateway内で消費されてしまうため、
// リダイレクトは追跡せずそのまま転送する。
func newProxyClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(":" + s.port)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証サービス（認証不要）
	s.router.Any("/naver/*path", s.handleProxyPath(func(c *gin.Context) string {
		return s.serviceURLs.Auth + "/naver" + c.Param("path")
	}))

	// OAuth2標準のコールバックパスをauthサービスのコールバックにリライトする
	s.router.GET("/login/oauth2/code/naver", s.handleProxyPath(func(_ *gin.Context) string {
		return s.serviceURLs.Auth + "/naver/callback"
	}))

	// ユーザーサービス
	s.router.Any("/api/v1/users/*path", s.handleProxyPath(func(c *gin.Context) string {
		return s.serviceURLs.User + "/api/v1/users" + c.Param("path")
	}))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// handleProxyPath は転送先URLを組み立ててプロキシするハンドラを返す。
func (s *Server) handleProxyPath(buildURL func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := buildURL(c)
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, proxyURL)
	}
}

// doProxy はリクエストを内部サービスに転送する共通処理。
// メソッド・ボディ・Content-Type・Authorizationヘッダーを引き継ぎ、
// レスポンスのステータス・ヘッダー・ボディをそのまま返す。
func (s *Server) doProxy(c *gin.Context, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}

	// 元のリクエストヘッダーを転送
	req.Header.Set("Content-Type", c.GetHeader("Content-Type"))
	req.Header.Set("Authorization", c.GetHeader("Authorization"))

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		log.Printf("プロキシエラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	// リダイレクト先をブラウザに伝えるためLocationヘッダーを引き継ぐ
	if location := resp.Header.Get("Location"); location != "" {
		c.Header("Location", location)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
