package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind はセッショントークンの種別を表す。
type Kind string

const (
	// KindAccess はアクセストークン（短命）を表す。
	KindAccess Kind = "access"
	// KindRefresh はリフレッシュトークン（長命）を表す。
	KindRefresh Kind = "refresh"
)

const (
	// AccessTokenLifetime はアクセストークンの有効期間（1時間）。
	AccessTokenLifetime = 3600 * time.Second
	// RefreshTokenLifetime はリフレッシュトークンの有効期間（30日）。
	RefreshTokenLifetime = 2592000 * time.Second
	// issuerName はJWTのiss（発行者）クレームに設定する値。
	issuerName = "authhub"
)

// ErrInvalidToken はトークンの署名検証または有効期限チェックに失敗したことを表す。
var ErrInvalidToken = errors.New("トークンが無効です")

// Identity はOAuthプロバイダーから取得したユーザー情報の正規化済み表現。
// プロバイダーごとのフィールド名の違いを吸収し、欠損フィールドは
// 空文字列またはデフォルト値で埋められる（nullは存在しない）。
type Identity struct {
	// UserID はプロバイダーが発行したユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Nickname はユーザーの表示名。常に非空。
	Nickname string `json:"nickname"`
	// Email はユーザーのメールアドレス。未提供の場合は空文字列。
	Email string `json:"email"`
	// EmailVerified はメールアドレスの確認状態。
	// プロバイダーが確認状態を提供しない場合はtrueに固定されるため、
	// 検証済みの主張として扱ってはならない。
	EmailVerified bool `json:"email_verified"`
	// ProfileImage はプロフィール画像のURL。未提供の場合は空文字列。
	ProfileImage string `json:"profile_image"`
}

// Claims はセッショントークンのクレーム（ペイロード）を表す。
// subjectにはプロバイダーのユーザーIDが入る。
type Claims struct {
	jwt.RegisteredClaims
	// Provider は認証に使用したOAuthプロバイダー名（例: "naver"）。
	Provider string `json:"provider"`
	// Kind はトークン種別（access または refresh）。
	Kind Kind `json:"kind"`
	// Nickname はユーザーの表示名。アクセストークンのみ保持する。
	Nickname string `json:"nickname,omitempty"`
	// Email はユーザーのメールアドレス。アクセストークンのみ保持する。
	Email string `json:"email,omitempty"`
	// EmailVerified はメールアドレスの確認状態。
	EmailVerified bool `json:"email_verified,omitempty"`
	// ProfileImage はプロフィール画像のURL。
	ProfileImage string `json:"profile_image,omitempty"`
}

// Issuer はセッショントークンの発行と検証を行う。
type Issuer struct {
	// secret はHMAC-SHA256署名用の秘密鍵。
	secret []byte
}

// NewIssuer は指定された秘密鍵でトークン発行者を生成する。
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// IssueAccessToken はユーザー情報を埋め込んだアクセストークンを発行する。
// 有効期間はAccessTokenLifetime（固定値、呼び出しごとの変更は不可）。
func (i *Issuer) IssueAccessToken(userID, provider string, identity Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuerName,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenLifetime)),
		},
		Provider:      provider,
		Kind:          KindAccess,
		Nickname:      identity.Nickname,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		ProfileImage:  identity.ProfileImage,
	}
	return i.sign(claims)
}

// IssueRefreshToken はリフレッシュトークンを発行する。
// ユーザー情報は埋め込まず、subjectとproviderのみを保持する。
// 有効期間はRefreshTokenLifetime（固定値）。
func (i *Issuer) IssueRefreshToken(userID, provider string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuerName,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTokenLifetime)),
		},
		Provider: provider,
		Kind:     KindRefresh,
	}
	return i.sign(claims)
}

// sign はクレームをHS256で署名してトークン文字列を返す。
func (i *Issuer) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Parse はトークン文字列を検証してクレームを返す。
// 署名不正・有効期限切れの場合はErrInvalidTokenを返す。
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
