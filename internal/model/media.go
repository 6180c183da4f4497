package model

import "time"

// MediaKind はメディアの種別を表す。
type MediaKind string

const (
	// MediaKindVideo は動画コンテンツ。
	MediaKindVideo MediaKind = "video"
	// MediaKindImage は画像コンテンツ。
	MediaKindImage MediaKind = "image"
	// MediaKindArticle は記事コンテンツ。
	MediaKindArticle MediaKind = "article"
)

// MediaItem はカタログに登録されたメディアを表す。
// Restrictedがtrueの項目はセーフモードのコンテキストからは閲覧できない。
type MediaItem struct {
	ID            string
	Title         string
	Kind          MediaKind
	Description   string // サニタイズ済みHTML
	SourcePath    string // ローカルソース上のパス
	ThumbnailURL  string
	ThumbnailData []byte // 取得済みサムネイル（取得失敗時はnil）
	ThumbnailMime string
	Restricted    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tag はメディアの分類タグを表す。
type Tag struct {
	ID   string
	Name string
}

// Favorite はユーザーのお気に入り登録を表す。
// ユーザーごとの件数上限は設定（FAVORITES_LIMIT）で制御される。
type Favorite struct {
	UserID      string
	MediaItemID string
	CreatedAt   time.Time
}
