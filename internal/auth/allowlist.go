// Package auth はOTPログイン、セッション管理、アクセスコンテキスト構築を提供する。
package auth

import (
	"github.com/hitoshi/mediagate/internal/model"
)

// Allowlist は利用を許可するメールアドレスの閉じた集合を表す。
// 管理者アドレスと明示的な許可リストから構成され、照合は大文字小文字を
// 区別しない。プロセス起動時に1回構築し、イミュータブルとして扱う。
type Allowlist struct {
	adminEmail string
	allowed    map[string]struct{}
}

// NewAllowlist はAllowlistを生成する。
// 全アドレスは構築時に正規化される。
func NewAllowlist(adminEmail string, allowedEmails []string) *Allowlist {
	allowed := make(map[string]struct{}, len(allowedEmails))
	for _, e := range allowedEmails {
		allowed[model.NormalizeEmail(e)] = struct{}{}
	}
	return &Allowlist{
		adminEmail: model.NormalizeEmail(adminEmail),
		allowed:    allowed,
	}
}

// IsAllowed は指定アドレスの利用が許可されているかを返す。
// 管理者アドレスは常に許可される。
func (a *Allowlist) IsAllowed(email string) bool {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return false
	}
	if normalized == a.adminEmail {
		return true
	}
	_, ok := a.allowed[normalized]
	return ok
}

// RoleFor は指定アドレスに与えるロールを返す。
// 管理者アドレスに一致する場合のみRoleAdmin。
func (a *Allowlist) RoleFor(email string) model.Role {
	if model.NormalizeEmail(email) == a.adminEmail {
		return model.RoleAdmin
	}
	return model.RoleUser
}
