package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/authhub/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// newTestServer はテスト用のユーザーサーバーを生成する。
func newTestServer(t *testing.T) *Server {
	t.Helper()

	router := gin.New()
	s := &Server{
		router: router,
		port:   "0",
		issuer: token.NewIssuer(testJWTSecret),
	}
	s.setupRoutes()

	return s
}

// TestHandleMe は認証済みユーザー情報エンドポイントを検証する。
func TestHandleMe(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでクレームが返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)

		accessToken, err := s.issuer.IssueAccessToken("naver-user-1", "naver", token.Identity{
			UserID:        "naver-user-1",
			Nickname:      "네이버 사용자",
			Email:         "user@naver.com",
			EmailVerified: true,
		})
		if err != nil {
			t.Fatalf("アクセストークン発行に失敗: %v", err)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		var result map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if result["id"] != "naver-user-1" {
			t.Errorf("id = %v, want %q", result["id"], "naver-user-1")
		}
		if result["provider"] != "naver" {
			t.Errorf("provider = %v, want %q", result["provider"], "naver")
		}
		if result["nickname"] != "네이버 사용자" {
			t.Errorf("nickname = %v, want %q", result["nickname"], "네이버 사용자")
		}
	})

	t.Run("トークン無しで401が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestUserHealth はヘルスチェックエンドポイントを検証する。
func TestUserHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
}
