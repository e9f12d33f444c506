// Package tokenstore はTTL付きキーバリューストアを提供する。
//
// OAuth2認証で発行したセッショントークンと、一度しか使用できない
// Authorization Code/Stateのペアを保持する。Authorization Codeの検証は
// アトミックなtake-and-delete操作で行い、コードの二重使用を防ぐ。
package tokenstore
