// Package token はローカルセッショントークンの発行と検証を提供する。
//
// OAuth2認証後、プロバイダーのユーザー情報を埋め込んだ自己完結型の
// JWT（アクセストークン + リフレッシュトークン）を発行する。
// authサービスが発行し、各サービスのJWTAuthミドルウェアが検証する。
package token
