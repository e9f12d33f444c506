// Package user はユーザーサービスの内部実装を提供する。
//
// 永続的なユーザーアカウントのモデリングは行わない。
// 認証済みセッショントークンのクレームを返すエンドポイントのみを持つ。
package user
