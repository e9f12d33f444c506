package user

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/authhub/pkg/middleware"
	"github.com/nao1215/authhub/pkg/token"
)

// Server はユーザーサービスのHTTPサーバー。
// 永続的なユーザーアカウントは持たず、検証済みセッショントークンの
// 情報を返すだけの骨格実装。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// issuer はセッショントークンの検証者。
	issuer *token.Issuer
}

// NewServer は新しいユーザーサーバーを生成する。
func NewServer(port string) *Server {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router: router,
		port:   port,
		issuer: token.NewIssuer(jwtSecret),
	}
	s.setupRoutes()

	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(":" + s.port)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.issuer))
	{
		api.GET("/users/me", s.handleMe())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user"})
	})
}

// handleMe は認証済みユーザー自身の情報を返すハンドラ。
// セッショントークンのクレームをそのまま返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー情報が取得できません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":             claims.Subject,
			"provider":       claims.Provider,
			"nickname":       claims.Nickname,
			"email":          claims.Email,
			"email_verified": claims.EmailVerified,
			"profile_image":  claims.ProfileImage,
		})
	}
}
