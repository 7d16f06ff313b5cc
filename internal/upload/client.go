// Package upload sends images to the third-party direct-upload provider used
// for profile pictures, posters and backdrops.
package upload

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

// ErrNotConfigured is returned when no provider API key is set.
var ErrNotConfigured = errors.New("image upload is not configured")

// Result describes an uploaded image.
type Result struct {
	URL         string `json:"url"`
	DeleteURL   string `json:"delete_url,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// providerResponse is the ImgBB-style envelope.
type providerResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL       string `json:"url"`
		DeleteURL string `json:"delete_url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client uploads images. It carries no bearer token: the provider is
// authenticated by its own API key.
type Client struct {
	cfg        config.UploadConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates an upload client from cfg.
func NewClient(cfg config.UploadConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// UploadImage validates the image in r and posts it to the provider,
// returning its public URL. Validation failures are models.ValidationErrors.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	// Read one byte past the limit to detect oversize input.
	data, err := io.ReadAll(io.LimitReader(r, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	contentType := http.DetectContentType(data[:min(len(data), sniffLen)])
	if errs := c.validate(filename, data, contentType); errs.HasErrors() {
		return nil, errs
	}

	body, formType, err := c.encodeForm(filename, data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set(constants.HeaderContentType, formType)
	req.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)

	log := logger.WithCorrelationID(ctx, c.logger).WithFields(logrus.Fields{
		"filename":     filename,
		"content_type": contentType,
		"size":         len(data),
	})
	log.Debug("Uploading image")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Error("Image upload failed")
		return nil, fmt.Errorf("image upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &models.APIError{StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !parsed.Success || parsed.Data.URL == "" {
		log.WithField("status", resp.StatusCode).Warn("Image upload rejected by provider")
		return nil, &models.APIError{
			StatusCode: resp.StatusCode,
			Message:    cmp.Or(parsed.Error.Message, "upload rejected"),
		}
	}

	log.WithField("url", parsed.Data.URL).Info("Image uploaded")

	return &Result{
		URL:         parsed.Data.URL,
		DeleteURL:   parsed.Data.DeleteURL,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (c *Client) validate(filename string, data []byte, contentType string) models.ValidationErrors {
	var errs models.ValidationErrors

	if strings.TrimSpace(filename) == "" {
		errs = append(errs, models.ValidationError{Field: "filename", Message: "is required"})
	}

	switch {
	case len(data) == 0:
		errs = append(errs, models.ValidationError{Field: "image", Message: "is empty"})
	case int64(len(data)) > c.cfg.MaxBytes:
		errs = append(errs, models.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("exceeds %d bytes", c.cfg.MaxBytes),
		})
	}

	if len(data) > 0 && !slices.Contains(c.cfg.AllowedTypes, contentType) {
		errs = append(errs, models.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("type %s is not allowed", contentType),
		})
	}

	return errs
}

func (c *Client) encodeForm(filename string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("key", c.cfg.APIKey); err != nil {
		return nil, "", fmt.Errorf("failed to write upload form: %w", err)
	}
	part, err := w.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("failed to write upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to write upload form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
