// Package auth は認証サービスの内部実装を提供する。
//
// Naver OAuth2のAuthorization Codeフローをオーケストレーションする。
// コールバックで受け取ったコードをプロバイダーのトークンに交換し、
// ユーザー情報を正規化してローカルのセッショントークン（JWT）を発行、
// TTL付きストアに保存した上でフロントエンドにリダイレクトする。
package auth
