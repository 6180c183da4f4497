package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediagate/internal/auth"
	"github.com/hitoshi/mediagate/internal/media"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
)

// MediaServiceInterface はメディアハンドラーが必要とするサービスインターフェース。
// 全ての読み取り・書き込みはアクセスコンテキストに基づいて認可される。
type MediaServiceInterface interface {
	ListMedia(ctx context.Context, ac *auth.AccessContext, opts media.ListOptions) ([]*model.MediaItem, error)
	GetMedia(ctx context.Context, ac *auth.AccessContext, mediaID string) (*media.MediaWithTags, error)
	ListTags(ctx context.Context) ([]model.Tag, error)
	CreateMedia(ctx context.Context, ac *auth.AccessContext, input media.MediaInput) (*model.MediaItem, error)
	UpdateMedia(ctx context.Context, ac *auth.AccessContext, mediaID string, input media.MediaInput) (*model.MediaItem, error)
	AddFavorite(ctx context.Context, ac *auth.AccessContext, mediaID string) error
	RemoveFavorite(ctx context.Context, ac *auth.AccessContext, mediaID string) error
	ListFavorites(ctx context.Context, ac *auth.AccessContext) ([]*model.MediaItem, error)
}

// MediaHandler はメディアカタログのHTTPハンドラー。
type MediaHandler struct {
	service MediaServiceInterface
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(service MediaServiceInterface) *MediaHandler {
	return &MediaHandler{service: service}
}

// mediaItemRequest はメディア作成・更新リクエストのボディ。
type mediaItemRequest struct {
	Title        string   `json:"title"`
	Kind         string   `json:"kind"`
	Description  string   `json:"description"`
	SourcePath   string   `json:"source_path"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Restricted   bool     `json:"restricted"`
	Tags         []string `json:"tags"`
}

// mediaItemResponse はメディア情報のAPIレスポンス。
type mediaItemResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	SourcePath   string `json:"source_path"`
	ThumbnailURL string `json:"thumbnail_url"`
	Restricted   bool   `json:"restricted"`
}

// mediaDetailResponse はタグを含むメディア詳細のAPIレスポンス。
type mediaDetailResponse struct {
	mediaItemResponse
	Tags []tagResponse `json:"tags"`
}

// tagResponse はタグ情報のAPIレスポンス。
type tagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListMedia はメディア一覧を取得する。匿名アクセスも可能で、
// 可視範囲はアクセスコンテキストによって絞り込まれる。
// GET /api/media?kind=&tag=&limit=&offset=
func (h *MediaHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())

	opts := media.ListOptions{
		Kind:  model.MediaKind(r.URL.Query().Get("kind")),
		TagID: r.URL.Query().Get("tag"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limitが不正です"))
			return
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("offsetが不正です"))
			return
		}
		opts.Offset = n
	}

	items, err := h.service.ListMedia(r.Context(), ac, opts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]mediaItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toMediaItemResponse(item))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": responses,
	})
}

// GetMedia はメディア詳細をタグ付きで取得する。
// 可視範囲外の項目は存在しない項目と区別なく404になる。
// GET /api/media/{id}
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())
	mediaID := chi.URLParam(r, "id")

	detail, err := h.service.GetMedia(r.Context(), ac, mediaID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	tags := make([]tagResponse, 0, len(detail.Tags))
	for _, tag := range detail.Tags {
		tags = append(tags, tagResponse{ID: tag.ID, Name: tag.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mediaDetailResponse{
		mediaItemResponse: toMediaItemResponse(detail.Item),
		Tags:              tags,
	})
}

// CreateMedia はメディアを登録する。管理者のみ実行できる。
// POST /api/media
func (h *MediaHandler) CreateMedia(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())

	var req mediaItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	item, err := h.service.CreateMedia(r.Context(), ac, toMediaInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMediaItemResponse(item))
}

// UpdateMedia はメディアを更新する。管理者のみ実行できる。
// PATCH /api/media/{id}
func (h *MediaHandler) UpdateMedia(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())
	mediaID := chi.URLParam(r, "id")

	var req mediaItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	item, err := h.service.UpdateMedia(r.Context(), ac, mediaID, toMediaInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMediaItemResponse(item))
}

// ListTags はタグ一覧を取得する。
// GET /api/tags
func (h *MediaHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]tagResponse, 0, len(tags))
	for _, tag := range tags {
		responses = append(responses, tagResponse{ID: tag.ID, Name: tag.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tags": responses,
	})
}

// ListFavorites はログインユーザーのお気に入り一覧を取得する。
// GET /api/favorites
func (h *MediaHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())

	items, err := h.service.ListFavorites(r.Context(), ac)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]mediaItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toMediaItemResponse(item))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": responses,
	})
}

// AddFavorite はメディアをお気に入りに登録する。
// POST /api/favorites/{mediaID}
func (h *MediaHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())
	mediaID := chi.URLParam(r, "mediaID")

	if err := h.service.AddFavorite(r.Context(), ac, mediaID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite はお気に入りを解除する。未登録でも成功する（冪等）。
// DELETE /api/favorites/{mediaID}
func (h *MediaHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())
	mediaID := chi.URLParam(r, "mediaID")

	if err := h.service.RemoveFavorite(r.Context(), ac, mediaID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toMediaInput はリクエストボディからサービス層の入力に変換する。
func toMediaInput(req mediaItemRequest) media.MediaInput {
	return media.MediaInput{
		Title:        req.Title,
		Kind:         model.MediaKind(req.Kind),
		Description:  req.Description,
		SourcePath:   req.SourcePath,
		ThumbnailURL: req.ThumbnailURL,
		Restricted:   req.Restricted,
		Tags:         req.Tags,
	}
}

// toMediaItemResponse はmodel.MediaItemからAPIレスポンスに変換する。
func toMediaItemResponse(item *model.MediaItem) mediaItemResponse {
	return mediaItemResponse{
		ID:           item.ID,
		Title:        item.Title,
		Kind:         string(item.Kind),
		Description:  item.Description,
		SourcePath:   item.SourcePath,
		ThumbnailURL: item.ThumbnailURL,
		Restricted:   item.Restricted,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// センチネルエラーはAPIErrorに包み直してから書き込む。
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotEligible):
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewNotEligibleError())
		return
	case errors.Is(err, model.ErrInvalidCredential):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialError())
		return
	case errors.Is(err, model.ErrDeliveryFailure):
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewDeliveryFailureError())
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNotEligible, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidCredential, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeDeliveryFailure:
		return http.StatusBadGateway
	case model.ErrCodeMediaNotFound:
		return http.StatusNotFound
	case model.ErrCodeFavoriteLimit:
		return http.StatusConflict
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
