// Package media はメディアカタログのドメインロジックを提供する。
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mediagate/internal/auth"
	"github.com/hitoshi/mediagate/internal/model"
	"github.com/hitoshi/mediagate/internal/repository"
)

// Sanitizer はHTMLサニタイズのインターフェース。
// security.ContentSanitizerServiceを抽象化してテスタビリティを向上させる。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// MediaInput はメディア作成・更新の入力。
type MediaInput struct {
	Title        string
	Kind         model.MediaKind
	Description  string
	SourcePath   string
	ThumbnailURL string
	Restricted   bool
	Tags         []string
}

// MediaWithTags はタグ情報を含むメディアの表現。
type MediaWithTags struct {
	Item *model.MediaItem
	Tags []model.Tag
}

// Service はメディアカタログのサービス層。
// 全ての読み取り操作はアクセスコンテキストに基づいて可視範囲を絞り込む。
type Service struct {
	mediaRepo      repository.MediaRepository
	favoriteRepo   repository.FavoriteRepository
	sanitizer      Sanitizer
	thumbnails     ThumbnailFetcherService
	favoritesLimit int
}

// NewService はServiceを生成する。
func NewService(
	mediaRepo repository.MediaRepository,
	favoriteRepo repository.FavoriteRepository,
	sanitizer Sanitizer,
	thumbnails ThumbnailFetcherService,
	favoritesLimit int,
) *Service {
	if favoritesLimit <= 0 {
		favoritesLimit = 100
	}
	return &Service{
		mediaRepo:      mediaRepo,
		favoriteRepo:   favoriteRepo,
		sanitizer:      sanitizer,
		thumbnails:     thumbnails,
		favoritesLimit: favoritesLimit,
	}
}

// ListOptions はメディア一覧取得の絞り込み条件。
type ListOptions struct {
	Kind   model.MediaKind
	TagID  string
	Limit  int
	Offset int
}

// ListMedia はアクセスコンテキストの可視範囲内のメディア一覧を返す。
// セーフモードのコンテキスト（匿名含む）には制限付き項目を返さない。
func (s *Service) ListMedia(ctx context.Context, ac *auth.AccessContext, opts ListOptions) ([]*model.MediaItem, error) {
	items, err := s.mediaRepo.List(ctx, repository.ListMediaOptions{
		Kind:              opts.Kind,
		TagID:             opts.TagID,
		IncludeRestricted: s.canViewRestricted(ac),
		Limit:             opts.Limit,
		Offset:            opts.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("メディア一覧の取得に失敗しました: %w", err)
	}
	return items, nil
}

// GetMedia は指定メディアをタグ付きで取得する。
// 存在しない場合と可視範囲外の場合は同じ未検出エラーを返し、
// 制限付き項目の存在自体を漏らさない。
func (s *Service) GetMedia(ctx context.Context, ac *auth.AccessContext, mediaID string) (*MediaWithTags, error) {
	item, err := s.mediaRepo.FindByID(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	if item == nil || (item.Restricted && !s.canViewRestricted(ac)) {
		return nil, model.NewMediaNotFoundError(mediaID)
	}

	tags, err := s.mediaRepo.TagsByMediaID(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}

	return &MediaWithTags{Item: item, Tags: tags}, nil
}

// ListTags は全タグを返す。タグ名自体は制限対象ではない。
func (s *Service) ListTags(ctx context.Context) ([]model.Tag, error) {
	tags, err := s.mediaRepo.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("タグ一覧の取得に失敗しました: %w", err)
	}
	return tags, nil
}

// CreateMedia はメディアをカタログに登録する。管理者のみ実行できる。
// 説明文はサニタイズしてから保存し、サムネイルURLがあれば同期で取得する。
func (s *Service) CreateMedia(ctx context.Context, ac *auth.AccessContext, input MediaInput) (*model.MediaItem, error) {
	if err := s.requireAdmin(ac); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	item := &model.MediaItem{
		ID:           uuid.New().String(),
		Title:        strings.TrimSpace(input.Title),
		Kind:         input.Kind,
		Description:  s.sanitizeDescription(input.Description),
		SourcePath:   input.SourcePath,
		ThumbnailURL: input.ThumbnailURL,
		Restricted:   input.Restricted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.mediaRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("メディアの保存に失敗しました: %w", err)
	}

	if len(input.Tags) > 0 {
		if err := s.mediaRepo.ReplaceTags(ctx, item.ID, normalizeTagNames(input.Tags)); err != nil {
			return nil, fmt.Errorf("タグの保存に失敗しました: %w", err)
		}
	}

	// サムネイル取得（同期で実行。取得失敗時はnullとして保存）
	s.fetchAndSaveThumbnail(ctx, item)

	return item, nil
}

// UpdateMedia はメディアを更新する。管理者のみ実行できる。
// サムネイルURLが変更された場合は再取得する。
func (s *Service) UpdateMedia(ctx context.Context, ac *auth.AccessContext, mediaID string, input MediaInput) (*model.MediaItem, error) {
	if err := s.requireAdmin(ac); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	item, err := s.mediaRepo.FindByID(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewMediaNotFoundError(mediaID)
	}

	thumbnailChanged := item.ThumbnailURL != input.ThumbnailURL

	item.Title = strings.TrimSpace(input.Title)
	item.Kind = input.Kind
	item.Description = s.sanitizeDescription(input.Description)
	item.SourcePath = input.SourcePath
	item.ThumbnailURL = input.ThumbnailURL
	item.Restricted = input.Restricted
	item.UpdatedAt = time.Now()

	if err := s.mediaRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("メディアの更新に失敗しました: %w", err)
	}

	if err := s.mediaRepo.ReplaceTags(ctx, item.ID, normalizeTagNames(input.Tags)); err != nil {
		return nil, fmt.Errorf("タグの更新に失敗しました: %w", err)
	}

	if thumbnailChanged {
		item.ThumbnailData = nil
		item.ThumbnailMime = ""
		s.fetchAndSaveThumbnail(ctx, item)
	}

	return item, nil
}

// AddFavorite はメディアをお気に入りに登録する。ログイン済みユーザーのみ実行できる。
// 可視範囲外のメディアは未検出として扱う。件数上限を超える登録は拒否する。
func (s *Service) AddFavorite(ctx context.Context, ac *auth.AccessContext, mediaID string) error {
	if err := s.requireUser(ac); err != nil {
		return err
	}

	item, err := s.mediaRepo.FindByID(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	if item == nil || (item.Restricted && !s.canViewRestricted(ac)) {
		return model.NewMediaNotFoundError(mediaID)
	}

	count, err := s.favoriteRepo.CountByUserID(ctx, ac.User.ID)
	if err != nil {
		return fmt.Errorf("お気に入り件数の確認に失敗しました: %w", err)
	}
	if count >= s.favoritesLimit {
		return model.NewFavoriteLimitError(s.favoritesLimit)
	}

	if err := s.favoriteRepo.Create(ctx, ac.User.ID, mediaID); err != nil {
		return fmt.Errorf("お気に入りの登録に失敗しました: %w", err)
	}
	return nil
}

// RemoveFavorite はお気に入りを解除する。未登録の場合も成功として扱う（冪等）。
func (s *Service) RemoveFavorite(ctx context.Context, ac *auth.AccessContext, mediaID string) error {
	if err := s.requireUser(ac); err != nil {
		return err
	}
	if err := s.favoriteRepo.Delete(ctx, ac.User.ID, mediaID); err != nil {
		return fmt.Errorf("お気に入りの解除に失敗しました: %w", err)
	}
	return nil
}

// ListFavorites はログイン済みユーザーのお気に入り一覧を返す。
// 登録後に制限付きへ変更された項目はセーフモードの一覧から除外する。
func (s *Service) ListFavorites(ctx context.Context, ac *auth.AccessContext) ([]*model.MediaItem, error) {
	if err := s.requireUser(ac); err != nil {
		return nil, err
	}

	items, err := s.favoriteRepo.ListByUserID(ctx, ac.User.ID)
	if err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗しました: %w", err)
	}

	if s.canViewRestricted(ac) {
		return items, nil
	}

	visible := make([]*model.MediaItem, 0, len(items))
	for _, item := range items {
		if !item.Restricted {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

// canViewRestricted は制限付き項目を閲覧できるコンテキストかを判定する。
// 匿名およびセーフモード固定のユーザーはfalseとなる。
func (s *Service) canViewRestricted(ac *auth.AccessContext) bool {
	return ac != nil && ac.IsAuthenticated && !ac.IsSafeMode
}

// requireUser はログイン済みであることを要求する。
func (s *Service) requireUser(ac *auth.AccessContext) error {
	if ac == nil || !ac.IsAuthenticated || ac.User == nil {
		return model.NewUnauthenticatedError()
	}
	return nil
}

// requireAdmin は管理者権限を要求する。
func (s *Service) requireAdmin(ac *auth.AccessContext) error {
	if ac == nil || !ac.IsAuthenticated {
		return model.NewUnauthenticatedError()
	}
	if !ac.IsAdmin {
		return model.NewForbiddenError()
	}
	return nil
}

// sanitizeDescription は説明文をサニタイズする。
func (s *Service) sanitizeDescription(raw string) string {
	if s.sanitizer == nil {
		return raw
	}
	return s.sanitizer.Sanitize(raw)
}

// fetchAndSaveThumbnail はサムネイルを取得して保存する。
// 取得失敗時はログ出力のみで、エラーを返さない。
func (s *Service) fetchAndSaveThumbnail(ctx context.Context, item *model.MediaItem) {
	if s.thumbnails == nil || item.ThumbnailURL == "" {
		return
	}

	data, mimeType, err := s.thumbnails.FetchThumbnail(ctx, item.ThumbnailURL)
	if err != nil {
		slog.Warn("サムネイル取得エラー", "mediaID", item.ID, "url", item.ThumbnailURL, "error", err)
		return
	}
	if data == nil {
		slog.Info("サムネイル未取得（nullとして保存）", "mediaID", item.ID, "url", item.ThumbnailURL)
		return
	}

	if err := s.mediaRepo.UpdateThumbnail(ctx, item.ID, data, mimeType); err != nil {
		slog.Warn("サムネイル保存エラー", "mediaID", item.ID, "error", err)
		return
	}

	item.ThumbnailData = data
	item.ThumbnailMime = mimeType
	slog.Info("サムネイル保存完了", "mediaID", item.ID, "mimeType", mimeType, "size", len(data))
}

// validateInput はメディア入力を検証する。
func validateInput(input MediaInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return model.NewInvalidRequestError("タイトルは必須です")
	}
	switch input.Kind {
	case model.MediaKindVideo, model.MediaKindImage, model.MediaKindArticle:
	default:
		return model.NewInvalidRequestError(fmt.Sprintf("不明なメディア種別です: %s", input.Kind))
	}
	return nil
}

// normalizeTagNames はタグ名の前後空白を除去し、空要素と重複を取り除く。
func normalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
