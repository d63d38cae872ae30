package model

import "strings"

// extensionMarker は拡張アサーションを示すauthorizationタイプ。
const extensionMarker = "extension"

// Credential はリクエストから抽出したクレデンシャルを表す直和型。
// BearerCredentialとAssertionCredentialのみが実装する。
type Credential interface {
	credential()
}

// BearerCredential は不透明なベアラートークン。
// ゲートウェイ自身は解釈せず、IdPの検証エンドポイントにそのまま転送する。
type BearerCredential struct {
	// Raw はauthorizationヘッダー（またはクエリパラメータ）の生の値。
	Raw string
}

func (BearerCredential) credential() {}

// AssertionCredential は拡張クライアントが提示する自己完結型の署名付きアサーション。
// IdPへの問い合わせなしに、登録済みシークレットでローカル検証できる。
type AssertionCredential struct {
	// HelixToken はclient_idを含む1つ目のJWT。署名検証せずデコードのみ行う。
	HelixToken string
	// Assertion は登録済みシークレットで署名検証する2つ目のJWT。
	Assertion string
}

func (AssertionCredential) credential() {}

// ParseCredential はauthorization値をCredentialに分類する。
// 空白で分割した先頭トークンが "extension"（大文字小文字無視）の場合は
// AssertionCredential、それ以外はBearerCredentialを返す。
// トークンセグメントが欠けた拡張アサーションもAssertionCredentialとして返し、
// 検証段階で失敗させる。
func ParseCredential(authorization string) Credential {
	parts := strings.Fields(authorization)
	if len(parts) == 0 || !strings.EqualFold(parts[0], extensionMarker) {
		return BearerCredential{Raw: authorization}
	}

	cred := AssertionCredential{}
	if len(parts) > 1 {
		cred.HelixToken = parts[1]
	}
	if len(parts) > 2 {
		cred.Assertion = parts[2]
	}
	return cred
}
