package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/middleware"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/internal/upload"
	"github.com/alpyxn/moviestar/pkg/logger"
)

const (
	// maxBanBody bounds the JSON ban payload.
	maxBanBody = 4 << 10
	// multipartOverhead is allowed on top of the image size for form framing.
	multipartOverhead = 64 << 10
)

// ImageUploader is the part of the upload client the admin handler needs.
type ImageUploader interface {
	Enabled() bool
	UploadImage(ctx context.Context, filename string, r io.Reader) (*upload.Result, error)
}

// AdminHandler handles back-office endpoints. Every route requires the
// admin realm role; the catalog API enforces the same rule on its side.
type AdminHandler struct {
	uploader ImageUploader
	maxBytes int64
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler instance with the provided dependencies.
func NewAdminHandler(uploader ImageUploader, maxImageBytes int64, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		uploader: uploader,
		maxBytes: maxImageBytes,
		logger:   logger,
	}
}

// RegisterRoutes registers admin routes on the provided router.
// Note: The router should already have the role middleware applied.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{userId}/ban", h.BanUser).Methods(http.MethodPost)
	router.HandleFunc("/users/{userId}/unban", h.UnbanUser).Methods(http.MethodPost)
	router.HandleFunc("/users/{userId}/comments", h.DeleteUserComments).Methods(http.MethodDelete)
	router.HandleFunc("/uploads/image", h.UploadImage).Methods(http.MethodPost)
}

// BanUser handles POST /admin/users/{userId}/ban
//
// Request body (optional):
//
//	{"reason": "spam"}
//
// Responses:
//   - 204: User banned
//   - 400: Invalid body
//   - 401/403: Handled by middleware
//   - other: Relayed from the catalog API
func (h *AdminHandler) BanUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	log := h.log(r).WithField("user_id", userID)

	var req models.BanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBanBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.WriteError(w, models.NewInvalidRequest("Invalid JSON body"), h.logger)
			return
		}
	}

	handle := middleware.HandleFrom(r.Context())
	if err := handle.Catalog.BanUser(r.Context(), userID, strings.TrimSpace(req.Reason)); err != nil {
		writeUpstreamError(w, r, err, log)
		return
	}

	log.Info("User banned")
	w.WriteHeader(http.StatusNoContent)
}

// UnbanUser handles POST /admin/users/{userId}/unban
func (h *AdminHandler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	log := h.log(r).WithField("user_id", userID)

	handle := middleware.HandleFrom(r.Context())
	if err := handle.Catalog.UnbanUser(r.Context(), userID); err != nil {
		writeUpstreamError(w, r, err, log)
		return
	}

	log.Info("User unbanned")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUserComments handles DELETE /admin/users/{userId}/comments
// Removes every comment the user wrote.
func (h *AdminHandler) DeleteUserComments(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	log := h.log(r).WithField("user_id", userID)

	handle := middleware.HandleFrom(r.Context())
	if err := handle.Catalog.DeleteUserComments(r.Context(), userID); err != nil {
		writeUpstreamError(w, r, err, log)
		return
	}

	log.Warn("All comments of user deleted")
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /admin/uploads/image
// Accepts multipart form data with an "image" file field and returns the
// public URL to store on a movie, actor or director.
//
// Responses:
//   - 201: Uploaded, body is upload.Result
//   - 400: Missing file, wrong type or too large
//   - 503: Upload provider not configured
//   - 502: Provider unreachable or rejected the upload
func (h *AdminHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	if !h.uploader.Enabled() {
		middleware.WriteError(w, &models.ErrorResponse{
			Code:        "upload_unavailable",
			Description: "Image upload is not configured",
			StatusCode:  http.StatusServiceUnavailable,
		}, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeUpstreamError(w, r, &models.ValidationError{Field: "image", Message: "a file no larger than the upload limit is required"}, log)
		return
	}
	defer file.Close()

	res, err := h.uploader.UploadImage(r.Context(), header.Filename, file)
	if err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) {
			log.WithError(err).Warn("Upload provider rejected image")
			middleware.WriteError(w, models.NewBadGateway("The image host rejected the upload"), h.logger)
			return
		}
		writeUpstreamError(w, r, err, log)
		return
	}

	writeJSON(w, res, http.StatusCreated, h.logger)
}

func (h *AdminHandler) log(r *http.Request) *logrus.Entry {
	return logger.WithCorrelationID(r.Context(), h.logger)
}
