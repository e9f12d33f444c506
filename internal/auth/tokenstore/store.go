package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/authhub/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrNotFound はキーが存在しない、または有効期限が切れていることを表す。
var ErrNotFound = errors.New("キーが存在しないか有効期限切れです")

// Store はTTL付きキーバリューストア。
// セッショントークン・Authorization Code/State のペアをSQLiteに保持する。
// 有効期限切れのエントリは読み取りから見えなくなり、書き込み時に遅延削除される。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
}

// New はマイグレーションを適用してストアを生成する。
func New(db *sql.DB) (*Store, error) {
	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("トークンストアのマイグレーションに失敗: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// AccessTokenKey はアクセストークンの保存キーを生成する。
func AccessTokenKey(provider, userID string) string {
	return fmt.Sprintf("access_token:%s:%s", provider, userID)
}

// RefreshTokenKey はリフレッシュトークンの保存キーを生成する。
func RefreshTokenKey(provider, userID string) string {
	return fmt.Sprintf("refresh_token:%s:%s", provider, userID)
}

// AuthorizationCodeKey はAuthorization Codeの保存キーを生成する。
func AuthorizationCodeKey(provider, code string) string {
	return fmt.Sprintf("authorization_code:%s:%s", provider, code)
}

// StateKey はCSRF防止用stateの保存キーを生成する。
func StateKey(provider, state string) string {
	return fmt.Sprintf("oauth_state:%s:%s", provider, state)
}

// Put は値をTTL付きで保存する。同一キーが存在する場合は上書きする。
// 書き込みのついでに有効期限切れのエントリを削除する。
func (s *Store) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	now := s.now().Unix()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE expires_at <= ?", now); err != nil {
		return fmt.Errorf("期限切れエントリの削除に失敗: %w", err)
	}

	expiresAt := s.now().Add(ttl).Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("トークンの保存に失敗: %w", err)
	}
	return nil
}

// Get はキーに対応する値を返す。
// キーが存在しない、または有効期限切れの場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM tokens WHERE key = ? AND expires_at > ?",
		key, s.now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("トークンの取得に失敗: %w", err)
	}
	return value, nil
}

// TakeAndDelete は値を取得すると同時にエントリを削除する。
// Authorization Codeの検証に使用し、単一のDELETE ... RETURNING文で
// 実行することで同一コードの二重使用（リプレイ）を防ぐ。
// キーが存在しない、または有効期限切れの場合はErrNotFoundを返す。
func (s *Store) TakeAndDelete(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM tokens WHERE key = ? AND expires_at > ? RETURNING value",
		key, s.now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("トークンの消費に失敗: %w", err)
	}
	return value, nil
}

// TTL はキーの残り有効期間を返す。
// キーが存在しない、または有効期限切れの場合はErrNotFoundを返す。
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT expires_at FROM tokens WHERE key = ? AND expires_at > ?",
		key, s.now().Unix(),
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("有効期限の取得に失敗: %w", err)
	}
	return time.Duration(expiresAt-s.now().Unix()) * time.Second, nil
}
