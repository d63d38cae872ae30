// Package gateway はテナント分離されたストレージゲートウェイを提供する。
// 認証済みIdentityとリクエストパスをオブジェクトキーに写像し、
// HTTPセマンティクスをストレージプリミティブに翻訳する。
// テナント分離はストレージインスタンスの分割ではなく、
// キープレフィックスとパスサニタイズのみで強制される。
package gateway

import "strings"

// Namespace はIdentityからテナント名前空間プレフィックスを導出する。
// user_id/client_id/ の形式であり、異なるIdentityが同じプレフィックスを
// 生成することはない。user_idのないIdentityで呼び出してはならない。
func Namespace(userID, clientID string) string {
	return userID + "/" + clientID + "/"
}

// ObjectKey はテナント名前空間とサニタイズ済みパスからオブジェクトキーを組み立てる。
// サニタイズはプレフィックス結合より前に行う。逆順（結合後サニタイズ）だと
// リクエスト由来の .. がプレフィックスを横断できてしまう。
func ObjectKey(userID, clientID, requestPath string) string {
	return Namespace(userID, clientID) + sanitizePath(requestPath)
}

// sanitizePath はリクエストパスから .. セグメントと空セグメントを取り除く。
// 末尾のセパレータは一覧（ディレクトリ）セマンティクスを示すため保持する。
func sanitizePath(p string) string {
	segments := strings.Split(p, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == ".." {
			continue
		}
		cleaned = append(cleaned, seg)
	}

	result := strings.Join(cleaned, "/")
	if result != "" && strings.HasSuffix(p, "/") {
		result += "/"
	}
	return result
}
