package model

import "time"

// OTP は一度だけ使用できる時限付きログインコードを表す。
// 同一メールアドレスに対して未消費かつ有効期限内のコードは常に最大1件。
// 新しいコードの発行は既存コードを全て削除する（last-writer-wins）。
type OTP struct {
	ID        string
	Email     string // 正規化済みメールアドレス
	Code      string // 固定長の数字列
	ExpiresAt time.Time
	Consumed  bool // 一度trueになったら二度と検証に成功しない
	CreatedAt time.Time
}
