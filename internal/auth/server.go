package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/authhub/internal/auth/tokenstore"
	"github.com/nao1215/authhub/pkg/middleware"
	"github.com/nao1215/authhub/pkg/token"
)

const (
	// frontendCallbackPath はフロントエンドのログインコールバック画面のパス。
	frontendCallbackPath = "/login/callback"
	// stateTTL はauth-urlで発行したstateの有効期間。
	stateTTL = 600 * time.Second
	// authorizationCodeTTL はAuthorization Code検証エントリの有効期間。
	authorizationCodeTTL = 300 * time.Second
)

// Server は認証サービスのHTTPサーバー。
// Naver OAuth2のコード交換・ユーザー情報取得・セッショントークン発行を
// オーケストレーションする。リクエストをまたぐ状態は持たない。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はトークン・Authorization CodeのTTL付きストア。
	store *tokenstore.Store
	// naver はNaver OAuth2 APIクライアント。
	naver *NaverClient
	// issuer はセッショントークンの発行者。
	issuer *token.Issuer
	// frontendURL はリダイレクト先のフロントエンドのオリジン。
	frontendURL string
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しい認証サーバーを生成する。
// SQLiteデータベースの初期化とトークンストアのマイグレーションを行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/auth.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	store, err := tokenstore.New(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("トークンストア初期化に失敗: %w", err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router: router,
		port:   port,
		store:  store,
		naver: NewNaverClient(
			os.Getenv("NAVER_CLIENT_ID"),
			os.Getenv("NAVER_CLIENT_SECRET"),
			os.Getenv("NAVER_REDIRECT_URI"),
		),
		issuer:      token.NewIssuer(jwtSecret),
		frontendURL: frontendURL,
		db:          sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	naver := s.router.Group("/naver")
	{
		// 認証URL取得（フロントエンドにクライアントIDを公開しないため）
		naver.GET("/auth-url", s.handleAuthURL())
		// NaverからのOAuth2コールバック
		naver.GET("/callback", s.handleCallback())
		// Authorization Codeの検証とトークン発行（フロントエンド主導フロー）
		naver.POST("/token", s.handleToken())
		// セッショントークンからのユーザー情報取得
		naver.GET("/user", middleware.JWTAuth(s.issuer), s.handleUser())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	})
}

// authURLResponse はGET /naver/auth-urlのレスポンス。
type authURLResponse struct {
	// Success は処理の成否。
	Success bool `json:"success"`
	// AuthURL はNaver認可画面のURL。成功時のみ設定される。
	AuthURL string `json:"auth_url,omitempty"`
	// Message はエラー時の説明。
	Message string `json:"message,omitempty"`
}

// handleAuthURL はNaver認可画面のURLを返すハンドラ。
// クライアントIDまたはリダイレクトURIが未設定の場合は500を返す。
func (s *Server) handleAuthURL() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.naver.Configured() {
			log.Printf("Naver OAuth2の設定が不足しています（NAVER_CLIENT_ID / NAVER_REDIRECT_URI）")
			c.JSON(http.StatusInternalServerError, authURLResponse{
				Success: false,
				Message: "NaverのクライアントIDまたはリダイレクトURIが設定されていません",
			})
			return
		}

		// CSRF防止用のstateを発行して保存する。保存失敗は認証開始を妨げない。
		state := uuid.New().String()
		if err := s.store.Put(c.Request.Context(), tokenstore.StateKey(ProviderNaver, state), state, stateTTL); err != nil {
			log.Printf("stateの保存に失敗: %v", err)
		}

		c.JSON(http.StatusOK, authURLResponse{
			Success: true,
			AuthURL: s.naver.AuthCodeURL(state),
		})
	}
}

// handleCallback はNaverからのOAuth2コールバックを処理するハンドラ。
// 結果の成否にかかわらず、必ずフロントエンドへの302リダイレクトで終わる。
// ブラウザのナビゲーションフローを壊さないため、エラーはクエリパラメータで伝える。
func (s *Server) handleCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Query("code")
		state := c.Query("state")
		providerError := c.Query("error")
		errorDescription := c.Query("error_description")

		// プロバイダーがエラーを返した場合（ユーザーの同意拒否など）
		if providerError != "" {
			log.Printf("Naverコールバックエラー: error=%s, description=%s", providerError, errorDescription)
			s.redirectError(c, providerError, errorDescription)
			return
		}

		if code == "" {
			s.redirectError(c, "認証コードがありません", "")
			return
		}

		ctx := c.Request.Context()

		// POST /naver/tokenでの検証用に認証試行を記録する。
		// 保存失敗はリダイレクトフロー自体を妨げない。
		codeKey := tokenstore.AuthorizationCodeKey(ProviderNaver, code)
		if err := s.store.Put(ctx, codeKey, state, authorizationCodeTTL); err != nil {
			log.Printf("Authorization Codeの記録に失敗: %v", err)
		}

		// 1. Authorization Codeをアクセストークンに交換
		tokenResp, err := s.naver.ExchangeCode(ctx, code, state)
		if err != nil {
			log.Printf("Naverトークン交換エラー: %v", err)
			s.redirectError(c, "認証処理中にエラーが発生しました", "")
			return
		}

		// 2. アクセストークンでユーザー情報を取得して正規化
		raw, err := s.naver.FetchUserInfo(ctx, tokenResp.AccessToken)
		if err != nil {
			log.Printf("Naverユーザー情報取得エラー: %v", err)
			s.redirectError(c, "認証処理中にエラーが発生しました", "")
			return
		}
		identity, err := ExtractUserInfo(raw)
		if err != nil {
			log.Printf("Naverユーザー情報の正規化エラー: %v", err)
			s.redirectError(c, "認証処理中にエラーが発生しました", "")
			return
		}

		// 3. セッショントークンを発行
		accessToken, err := s.issuer.IssueAccessToken(identity.UserID, ProviderNaver, identity)
		if err != nil {
			log.Printf("アクセストークン発行エラー: %v", err)
			s.redirectError(c, "認証処理中にエラーが発生しました", "")
			return
		}
		refreshToken, err := s.issuer.IssueRefreshToken(identity.UserID, ProviderNaver)
		if err != nil {
			log.Printf("リフレッシュトークン発行エラー: %v", err)
			s.redirectError(c, "認証処理中にエラーが発生しました", "")
			return
		}

		// 4. トークンストアに保存（ベストエフォート: 失敗してもリダイレクトは行う）
		s.persistSessionTokens(c, identity.UserID, accessToken, refreshToken)

		// 5. フロントエンドにトークン付きでリダイレクト
		params := url.Values{}
		params.Set("provider", ProviderNaver)
		params.Set("token", accessToken)
		params.Set("refresh_token", refreshToken)
		s.redirectToFrontend(c, params)
	}
}

// persistSessionTokens は発行済みセッショントークンをストアに保存する。
// 保存失敗はログに記録するのみで、呼び出し元のフローを止めない。
func (s *Server) persistSessionTokens(c *gin.Context, userID, accessToken, refreshToken string) {
	ctx := c.Request.Context()
	if err := s.store.Put(ctx, tokenstore.AccessTokenKey(ProviderNaver, userID), accessToken, token.AccessTokenLifetime); err != nil {
		log.Printf("アクセストークンの保存に失敗: %v", err)
	}
	if err := s.store.Put(ctx, tokenstore.RefreshTokenKey(ProviderNaver, userID), refreshToken, token.RefreshTokenLifetime); err != nil {
		log.Printf("リフレッシュトークンの保存に失敗: %v", err)
	}
}

// redirectToFrontend はフロントエンドのコールバック画面に302リダイレクトする。
func (s *Server) redirectToFrontend(c *gin.Context, params url.Values) {
	c.Redirect(http.StatusFound, s.frontendURL+frontendCallbackPath+"?"+params.Encode())
}

// redirectError はエラー情報をクエリパラメータに載せてフロントエンドにリダイレクトする。
func (s *Server) redirectError(c *gin.Context, errorMessage, errorDescription string) {
	params := url.Values{}
	params.Set("provider", ProviderNaver)
	params.Set("error", errorMessage)
	if errorDescription != "" {
		params.Set("error_description", errorDescription)
	}
	s.redirectToFrontend(c, params)
}

// tokenRequest はPOST /naver/tokenのリクエストボディ。
type tokenRequest struct {
	// Code はNaverから受け取ったAuthorization Code。
	Code string `json:"code"`
	// State はCSRF防止用のstate。省略可能。
	State string `json:"state"`
}

// tokenResponse はPOST /naver/tokenのレスポンス。
type tokenResponse struct {
	// Success は処理の成否。
	Success bool `json:"success"`
	// Message は結果の説明。
	Message string `json:"message"`
	// AccessToken は発行したセッションアクセストークン。成功時のみ。
	AccessToken string `json:"access_token,omitempty"`
	// RefreshToken は発行したセッションリフレッシュトークン。成功時のみ。
	RefreshToken string `json:"refresh_token,omitempty"`
	// UserID はNaverのユーザーID。成功時のみ。
	UserID string `json:"user_id,omitempty"`
}

// handleToken はAuthorization Codeを検証してセッショントークンを発行するハンドラ。
// コードの検証はアトミックなtake-and-deleteで行い、二重使用を防ぐ。
func (s *Server) handleToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
			c.JSON(http.StatusBadRequest, tokenResponse{
				Success: false,
				Message: "Authorization Codeが必要です",
			})
			return
		}

		ctx := c.Request.Context()

		// Authorization Codeの検証（アトミックに消費する）
		savedState, err := s.store.TakeAndDelete(ctx, tokenstore.AuthorizationCodeKey(ProviderNaver, req.Code))
		if errors.Is(err, tokenstore.ErrNotFound) {
			c.JSON(http.StatusBadRequest, tokenResponse{
				Success: false,
				Message: "無効または期限切れのAuthorization Codeです",
			})
			return
		}
		if err != nil {
			log.Printf("Authorization Code検証エラー: %v", err)
			c.JSON(http.StatusInternalServerError, tokenResponse{
				Success: false,
				Message: "Authorization Codeの検証に失敗しました",
			})
			return
		}

		// state検証（リクエストに含まれる場合のみ）
		if req.State != "" && req.State != savedState {
			c.JSON(http.StatusBadRequest, tokenResponse{
				Success: false,
				Message: "stateが一致しません",
			})
			return
		}

		// Naver APIでトークン交換とユーザー情報取得
		providerToken, err := s.naver.ExchangeCode(ctx, req.Code, savedState)
		if err != nil {
			log.Printf("Naverトークン交換エラー: %v", err)
			c.JSON(http.StatusBadGateway, tokenResponse{
				Success: false,
				Message: "Naverトークンの交換に失敗しました",
			})
			return
		}
		raw, err := s.naver.FetchUserInfo(ctx, providerToken.AccessToken)
		if err != nil {
			log.Printf("Naverユーザー情報取得エラー: %v", err)
			c.JSON(http.StatusBadGateway, tokenResponse{
				Success: false,
				Message: "Naverユーザー情報の取得に失敗しました",
			})
			return
		}
		identity, err := ExtractUserInfo(raw)
		if err != nil {
			log.Printf("Naverユーザー情報の正規化エラー: %v", err)
			c.JSON(http.StatusBadGateway, tokenResponse{
				Success: false,
				Message: "Naverユーザー情報の取得に失敗しました",
			})
			return
		}

		// セッショントークンの発行と保存
		accessToken, err := s.issuer.IssueAccessToken(identity.UserID, ProviderNaver, identity)
		if err != nil {
			log.Printf("アクセストークン発行エラー: %v", err)
			c.JSON(http.StatusInternalServerError, tokenResponse{
				Success: false,
				Message: "トークンの発行に失敗しました",
			})
			return
		}
		refreshToken, err := s.issuer.IssueRefreshToken(identity.UserID, ProviderNaver)
		if err != nil {
			log.Printf("リフレッシュトークン発行エラー: %v", err)
			c.JSON(http.StatusInternalServerError, tokenResponse{
				Success: false,
				Message: "トークンの発行に失敗しました",
			})
			return
		}
		s.persistSessionTokens(c, identity.UserID, accessToken, refreshToken)

		c.JSON(http.StatusOK, tokenResponse{
			Success:      true,
			Message:      "Naverトークンを発行しました",
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			UserID:       identity.UserID,
		})
	}
}

// userResponse はGET /naver/userのレスポンス。
type userResponse struct {
	// Success は処理の成否。
	Success bool `json:"success"`
	// User は検証済みセッショントークンのユーザー情報。
	User userPayload `json:"user"`
}

// userPayload はユーザー情報のJSON表現。
type userPayload struct {
	// ID はプロバイダーのユーザーID。
	ID string `json:"id"`
	// Provider は認証に使用したプロバイダー名。
	Provider string `json:"provider"`
	// Nickname はユーザーの表示名。
	Nickname string `json:"nickname"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// EmailVerified はメールアドレスの確認状態。
	EmailVerified bool `json:"email_verified"`
	// ProfileImage はプロフィール画像のURL。
	ProfileImage string `json:"profile_image"`
}

// handleUser は検証済みセッショントークンからユーザー情報を返すハンドラ。
// JWTAuthミドルウェアが事前に適用されている。
func (s *Server) handleUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー情報が取得できません"})
			return
		}

		c.JSON(http.StatusOK, userResponse{
			Success: true,
			User: userPayload{
				ID:            claims.Subject,
				Provider:      claims.Provider,
				Nickname:      claims.Nickname,
				Email:         claims.Email,
				EmailVerified: claims.EmailVerified,
				ProfileImage:  claims.ProfileImage,
			},
		})
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
