// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスとして、認証サービスと
// ユーザーサービスへのリクエストルーティングを担当する。
// OAuth2標準のコールバックパス /login/oauth2/code/naver は
// authサービスの /naver/callback にリライトされる。
package gateway
