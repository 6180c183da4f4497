// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/mediagate/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスの一意制約違反はエラーになる。
	Create(ctx context.Context, user *model.User) error
}

// OTPRepository はワンタイムコードの永続化インターフェース。
// レコードの書き込みはOTPマネージャのみが行う。
type OTPRepository interface {
	// Create はワンタイムコードを作成する。
	Create(ctx context.Context, otp *model.OTP) error

	// DeleteByEmail は指定メールアドレスの全コードを削除する。
	// 新規発行時の旧コード無効化（last-writer-wins）に使用する。
	DeleteByEmail(ctx context.Context, email string) error

	// Consume はメールアドレス・コード・未消費・有効期限内の全条件に一致する
	// レコードを1回の条件付きUPDATEで消費済みにする。
	// 一致した場合はtrueを返す。read-then-writeではないため、同一コードへの
	// 並行呼び出しで成功するのは最大1つ。
	Consume(ctx context.Context, email, code string) (bool, error)

	// DeleteExpired は有効期限を過ぎた全コードを削除し、削除件数を返す。
	// 冪等であり、発行・検証と並行して安全に実行できる。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionRepository はセッションレコードの永続化インターフェース。
// レコードの書き込みはセッションマネージャのみが行う。
type SessionRepository interface {
	// Create はセッションレコードを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindValid はID・トークン文字列の完全一致・有効期限内の全条件を満たす
	// セッションを取得する。いずれかを満たさない場合はnilを返す。
	// レコード削除による即時失効はこの検索の「見つからない」として現れる。
	FindValid(ctx context.Context, id, token string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired は有効期限を過ぎた全セッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ListMediaOptions はメディア一覧取得の絞り込み条件。
type ListMediaOptions struct {
	Kind              model.MediaKind // 空の場合は全種別
	TagID             string          // 空の場合はタグで絞り込まない
	IncludeRestricted bool            // falseの場合は制限付き項目を除外する
	Limit             int
	Offset            int
}

// MediaRepository はメディアカタログの永続化インターフェース。
type MediaRepository interface {
	// FindByID は指定IDのメディアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.MediaItem, error)

	// List は条件に一致するメディア一覧をcreated_at降順で取得する。
	List(ctx context.Context, opts ListMediaOptions) ([]*model.MediaItem, error)

	// Create はメディアを作成する。
	Create(ctx context.Context, item *model.MediaItem) error

	// Update はメディアを上書き更新する。
	Update(ctx context.Context, item *model.MediaItem) error

	// UpdateThumbnail はサムネイル画像データとMIMEタイプのみを更新する。
	UpdateThumbnail(ctx context.Context, mediaID string, data []byte, mimeType string) error

	// ListTags は全タグをname昇順で取得する。
	ListTags(ctx context.Context) ([]model.Tag, error)

	// TagsByMediaID は指定メディアに付与されたタグを取得する。
	TagsByMediaID(ctx context.Context, mediaID string) ([]model.Tag, error)

	// ReplaceTags はメディアのタグ付けを同一トランザクションで入れ替える。
	// 未登録のタグ名は新規作成する。
	ReplaceTags(ctx context.Context, mediaID string, tagNames []string) error
}

// FavoriteRepository はお気に入りの永続化インターフェース。
type FavoriteRepository interface {
	// Create はお気に入りを登録する。重複登録は冪等に成功する。
	Create(ctx context.Context, userID, mediaItemID string) error

	// Delete はお気に入りを解除する。未登録の場合もエラーにしない。
	Delete(ctx context.Context, userID, mediaItemID string) error

	// CountByUserID はユーザーのお気に入り件数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// ListByUserID はユーザーのお気に入りメディア一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.MediaItem, error)
}
