package model

import "time"

// Session は発行済みトークンを裏付けるサーバー側レコードを表す。
// トークンの署名が有効でも、このレコードが存在しない・トークン文字列が
// 一致しない・期限切れのいずれかであればトークンは無効となる。
// レコードの削除が即時の失効（サーバー側ログアウト）を実現する。
type Session struct {
	ID        string // 推測不可能なランダムID（トークンのクレームにも埋め込まれる）
	UserID    string
	Token     string // 署名済みトークン文字列そのもの
	ExpiresAt time.Time
	CreatedAt time.Time
}
