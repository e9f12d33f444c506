package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// receivedRequest はバックエンドが受け取ったリクエスト情報を保持する構造体。
type receivedRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// RawQuery はクエリ文字列。
	RawQuery string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// newTestServer はモックバックエンドを持つテスト用Gatewayサーバーを生成する。
// authHandler / userHandler がそれぞれのバックエンドサービスとして応答する。
func newTestServer(t *testing.T, authHandler, userHandler http.HandlerFunc) *Server {
	t.Helper()

	authBackend := httptest.NewServer(authHandler)
	t.Cleanup(authBackend.Close)
	userBackend := httptest.NewServer(userHandler)
	t.Cleanup(userBackend.Close)

	router := gin.New()
	s := &Server{
		router: router,
		port:   "0",
		serviceURLs: serviceURLConfig{
			Auth: authBackend.URL,
			User: userBackend.URL,
		},
		proxyClient: newProxyClient(),
	}
	s.setupRoutes()

	return s
}

// recordingHandler は受信したリクエストを記録してJSONを返すハンドラを生成する。
func recordingHandler(received *receivedRequest, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.RawQuery = r.URL.RawQuery
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

// TestProxyToAuth は認証サービスへのプロキシを検証する。
func TestProxyToAuth(t *testing.T) {
	t.Parallel()

	t.Run("GETリクエストがパスとクエリ付きで転送されること", func(t *testing.T) {
		t.Parallel()

		var received receivedRequest
		s := newTestServer(t,
			recordingHandler(&received, http.StatusOK, `{"success":true,"auth_url":"https://nid.naver.com/oauth2.0/authorize"}`),
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/naver/auth-url?redirect=1", nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if received.Path != "/naver/auth-url" {
			t.Errorf("転送先パス = %q, want %q", received.Path, "/naver/auth-url")
		}
		if received.RawQuery != "redirect=1" {
			t.Errorf("クエリ = %q, want %q", received.RawQuery, "redirect=1")
		}

		var result map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if result["success"] != true {
			t.Error("successがtrueでない")
		}
	})

	t.Run("POSTリクエストのボディとヘッダーが転送されること", func(t *testing.T) {
		t.Parallel()

		var received receivedRequest
		s := newTestServer(t,
			recordingHandler(&received, http.StatusOK, `{"success":true}`),
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/naver/token", strings.NewReader(`{"code":"abc"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer session-token")
		s.router.ServeHTTP(w, req)

		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if string(received.Body) != `{"code":"abc"}` {
			t.Errorf("Body = %q, want %q", string(received.Body), `{"code":"abc"}`)
		}
		if got := received.Headers.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}
		if got := received.Headers.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer session-token")
		}
	})

	t.Run("バックエンドのエラーステータスがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		var received receivedRequest
		s := newTestServer(t,
			recordingHandler(&received, http.StatusBadRequest, `{"success":false,"message":"Authorization Codeが必要です"}`),
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/naver/token", strings.NewReader(`{}`))
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("接続できないバックエンドで502が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t,
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		)
		s.serviceURLs.Auth = "http://127.0.0.1:1"

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/naver/auth-url", nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadGateway)
		}
	})
}

// TestCallbackRewrite はOAuth2標準コールバックパスのリライトを検証する。
func TestCallbackRewrite(t *testing.T) {
	t.Parallel()

	t.Run("標準パスがauthサービスのコールバックに転送されること", func(t *testing.T) {
		t.Parallel()

		var received receivedRequest
		s := newTestServer(t,
			recordingHandler(&received, http.StatusOK, `{}`),
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/login/oauth2/code/naver?code=abc&state=xyz", nil)
		s.router.ServeHTTP(w, req)

		if received.Path != "/naver/callback" {
			t.Errorf("転送先パス = %q, want %q", received.Path, "/naver/callback")
		}
		if received.RawQuery != "code=abc&state=xyz" {
			t.Errorf("クエリ = %q, want %q", received.RawQuery, "code=abc&state=xyz")
		}
	})

	t.Run("authサービスの302リダイレクトがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		redirectTo := "http://localhost:3000/login/callback?provider=naver&token=jwt"
		s := newTestServer(t,
			func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Location", redirectTo)
				w.WriteHeader(http.StatusFound)
			},
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/login/oauth2/code/naver?code=abc", nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusFound {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusFound)
		}
		if got := w.Header().Get("Location"); got != redirectTo {
			t.Errorf("Location = %q, want %q", got, redirectTo)
		}
	})
}

// TestProxyToUser はユーザーサービスへのプロキシを検証する。
func TestProxyToUser(t *testing.T) {
	t.Parallel()

	t.Run("ユーザーサービスのパスに転送されること", func(t *testing.T) {
		t.Parallel()

		var received receivedRequest
		s := newTestServer(t,
			recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
			recordingHandler(&received, http.StatusOK, `{"id":"u1"}`),
		)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer session-token")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if received.Path != "/api/v1/users/me" {
			t.Errorf("転送先パス = %q, want %q", received.Path, "/api/v1/users/me")
		}
		if got := received.Headers.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer session-token")
		}
	})
}

// TestGatewayHealth はヘルスチェックエンドポイントを検証する。
func TestGatewayHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t,
		recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
		recordingHandler(&receivedRequest{}, http.StatusOK, `{}`),
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if result["service"] != "gateway" {
		t.Errorf("service = %q, want %q", result["service"], "gateway")
	}
}
