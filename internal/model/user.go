// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleAdmin は管理者。セーフモードの切り替えと制限付きコンテンツの閲覧が可能。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザー。常にセーフモードで動作する。
	RoleUser Role = "user"
)

// User は許可リストに載ったメールアドレスから作成されるサービス利用ユーザーを表す。
// 初回のOTP認証成功時に遅延作成され、このコアから削除されることはない。
type User struct {
	ID           string
	Email        string // 正規化済み（小文字・前後空白除去）、一意
	DisplayName  string // デフォルトはメールアドレスのローカルパート
	Role         Role   // 作成時に許可リストから一度だけ決定される
	SafeModeOnly bool   // 一般ユーザーは常にtrue、管理者は切り替え可能
	CreatedAt    time.Time
}

// IsAdmin は管理者権限を持つかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsSafeMode はセーフモードで動作するかを返す。
// 一般ユーザーは常にセーフモード、管理者はフラグに従う。
func (u *User) IsSafeMode() bool {
	return u.SafeModeOnly
}

// NormalizeEmail はメールアドレスを小文字化し前後の空白を除去する。
// 許可リスト照合・ユーザー検索・OTP発行の全てでこの正規化を前提とする。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPart はメールアドレスの@より前の部分を返す。
// 表示名のデフォルト値として使用する。
func LocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
