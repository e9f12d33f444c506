package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/authhub/pkg/token"
)

// headerKeyUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// contextKeyClaims はGinコンテキストに検証済みクレームを格納するためのキー。
const contextKeyClaims = "session_claims"

// JWTAuth はセッショントークンを検証するGinミドルウェアを返す。
// Bearerトークンとして送られたアクセストークンを検証し、成功した場合は
// コンテキストに "user_id"・"provider"・検証済みクレームを設定する。
// リフレッシュトークンはAPIアクセスには使用できない。
func JWTAuth(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := issuer.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}
		if claims.Kind != token.KindAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "アクセストークンが必要です",
			})
			return
		}

		c.Set("user_id", claims.Subject)
		c.Set("provider", claims.Provider)
		c.Set(contextKeyClaims, claims)
		c.Header(headerKeyUserID, claims.Subject)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetClaims はGinコンテキストから検証済みのセッションクレームを取得する。
// JWTAuthミドルウェアが適用されていない場合はnilを返す。
func GetClaims(c *gin.Context) *token.Claims {
	v, _ := c.Get(contextKeyClaims)
	if claims, ok := v.(*token.Claims); ok {
		return claims
	}
	return nil
}
