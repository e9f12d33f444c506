// Package httpclient はHTTP通信を行う共通クライアントを提供する。
//
// gatewayから内部サービスへのJSON API呼び出しと、authサービスから
// 外部OAuthプロバイダーへの呼び出し（フォームエンコードのトークン交換、
// Bearerトークン付きユーザー情報取得）の通信パターンを統一する。
package httpclient
