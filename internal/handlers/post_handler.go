package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/jobs"
	"github.com/ternarybob/salonpress/internal/models"
)

// PostHandler serves blog post endpoints
type PostHandler struct {
	posts     interfaces.PostStorage
	attempts  interfaces.AttemptLogStorage
	submitter PostJobSubmitter
	logger    arbor.ILogger
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(storage interfaces.StorageManager, submitter PostJobSubmitter, logger arbor.ILogger) *PostHandler {
	return &PostHandler{
		posts:     storage.PostStorage(),
		attempts:  storage.AttemptLogStorage(),
		submitter: submitter,
		logger:    logger,
	}
}

type createPostRequest struct {
	UserID     string   `json:"user_id" validate:"required"`
	SalonID    string   `json:"salon_id"`
	Title      string   `json:"title" validate:"max=200"`
	Body       string   `json:"body"`
	AIPrompt   string   `json:"ai_prompt"`
	Images     []string `json:"images" validate:"max=20,dive,required"`
	StylistID  string   `json:"stylist_id"`
	CouponName string   `json:"coupon_name"`
}

type selectRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

// CreatePostHandler handles POST /api/posts
func (h *PostHandler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createPostRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Body == "" && req.AIPrompt == "" {
		WriteError(w, http.StatusBadRequest, "either body or ai_prompt is required")
		return
	}

	post := &models.BlogPost{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		SalonID:           req.SalonID,
		Title:             req.Title,
		Body:              req.Body,
		AIPrompt:          req.AIPrompt,
		Images:            req.Images,
		StylistID:         req.StylistID,
		CouponName:        req.CouponName,
		Status:            models.PostStatusDraft,
		SelectedVariation: -1,
	}
	if post.Images == nil {
		post.Images = []string{}
	}
	if post.Title != "" && post.Body != "" {
		post.Status = models.PostStatusReady
	}

	if err := h.posts.SavePost(r.Context(), post); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create post")
		WriteError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}

	h.logger.Info().Str("post_id", post.ID).Str("user_id", post.UserID).Msg("Post created")
	WriteJSON(w, http.StatusCreated, post)
}

// ListPostsHandler handles GET /api/posts?user_id=
func (h *PostHandler) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	posts, err := h.posts.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list posts")
		WriteError(w, http.StatusInternalServerError, "Failed to list posts")
		return
	}
	if posts == nil {
		posts = []*models.BlogPost{}
	}
	WriteJSON(w, http.StatusOK, posts)
}

// GetPostHandler handles GET /api/posts/{id}
func (h *PostHandler) GetPostHandler(w http.ResponseWriter, r *http.Request, postID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	post, err := h.posts.GetPost(r.Context(), postID)
	if err != nil {
		h.writeJobError(w, postID, err)
		return
	}
	WriteJSON(w, http.StatusOK, post)
}

// GenerateHandler handles POST /api/posts/{id}/generate
func (h *PostHandler) GenerateHandler(w http.ResponseWriter, r *http.Request, postID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	chainID, err := h.submitter.SubmitGenerate(r.Context(), postID)
	if err != nil {
		h.writeJobError(w, postID, err)
		return
	}
	WriteAccepted(w, postID, chainID)
}

// PublishHandler handles POST /api/posts/{id}/publish
func (h *PostHandler) PublishHandler(w http.ResponseWriter, r *http.Request, postID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	chainID, err := h.submitter.SubmitPublish(r.Context(), postID)
	if err != nil {
		h.writeJobError(w, postID, err)
		return
	}
	WriteAccepted(w, postID, chainID)
}

// SelectHandler handles POST /api/posts/{id}/select
func (h *PostHandler) SelectHandler(w http.ResponseWriter, r *http.Request, postID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req selectRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.submitter.SelectVariation(r.Context(), postID, *req.Index)
	if err != nil {
		h.writeJobError(w, postID, err)
		return
	}
	WriteJSON(w, http.StatusOK, post)
}

// AttemptsHandler handles GET /api/posts/{id}/attempts
func (h *PostHandler) AttemptsHandler(w http.ResponseWriter, r *http.Request, postID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if _, err := h.posts.GetPost(r.Context(), postID); err != nil {
		h.writeJobError(w, postID, err)
		return
	}

	logs, err := h.attempts.ListByPost(r.Context(), postID)
	if err != nil {
		h.logger.Error().Err(err).Str("post_id", postID).Msg("Failed to list attempts")
		WriteError(w, http.StatusInternalServerError, "Failed to list attempts")
		return
	}
	if logs == nil {
		logs = []*models.AttemptLog{}
	}
	WriteJSON(w, http.StatusOK, logs)
}

func (h *PostHandler) writeJobError(w http.ResponseWriter, postID string, err error) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Post not found")
	case errors.Is(err, jobs.ErrInvalidState):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrNoAccount):
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Str("post_id", postID).Msg("Post request failed")
		WriteError(w, http.StatusInternalServerError, "Internal error")
	}
}
