package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/certforge/certforge/internal/csvio"
	"github.com/certforge/certforge/internal/domain"
	"github.com/certforge/certforge/internal/observability"
	"github.com/certforge/certforge/internal/repository"
	"github.com/certforge/certforge/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	maxCSVSize      = 10 << 20 // 10 MiB
	maxTemplateSize = 20 << 20 // 20 MiB
)

type CertificateService interface {
	SubmitBatch(ctx context.Context, recipients []domain.Recipient, subject, body string, skipped int) (service.BatchSubmission, error)
	Progress(ctx context.Context, batchID string) (domain.Progress, error)
	ListStatuses(ctx context.Context, batchID string, params repository.ListParams) ([]domain.Certificate, int64, error)
	Retry(ctx context.Context, batchID, subject, body string) (int64, error)
	ExportArchive(ctx context.Context, batchID string, w io.Writer) error
}

type CertificateHandler struct {
	service      CertificateService
	templatePath string
}

func NewCertificateHandler(service CertificateService, templatePath string) (*CertificateHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("certificate service is required")
	}
	if templatePath == "" {
		return nil, fmt.Errorf("template path is required")
	}
	return &CertificateHandler{service: service, templatePath: templatePath}, nil
}

func RegisterCertificateRoutes(router fiber.Router, service CertificateService, templatePath string) error {
	h, err := NewCertificateHandler(service, templatePath)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/certificates/batch", h.SubmitBatch)
	v1.Get("/certificates/batches/:batchId/progress", h.GetProgress)
	v1.Get("/certificates/batches/:batchId", h.ListBatch)
	v1.Post("/certificates/batches/:batchId/retry", h.RetryBatch)
	v1.Get("/certificates/batches/:batchId/archive", h.DownloadArchive)
	v1.Post("/certificates/template", h.UploadTemplate)

	return nil
}

type submitBatchResponse struct {
	BatchID string `json:"batchId"`
	Total   int    `json:"total"`
	Skipped int    `json:"skipped"`
}

type progressResponse struct {
	BatchID string `json:"batchId"`
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
	Done    bool   `json:"done"`
}

type certificateResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

type listBatchResponse struct {
	Data []certificateResponse `json:"data"`
	Meta listMeta              `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type retryRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type retryResponse struct {
	BatchID  string `json:"batchId"`
	Requeued int64  `json:"requeued"`
}

func (h *CertificateHandler) SubmitBatch(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "csv file is required")
	}
	if fileHeader.Size > maxCSVSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "csv file too large")
	}

	subject := strings.TrimSpace(c.FormValue("subject"))
	body := c.FormValue("body")
	if subject == "" {
		return toHTTPError(fmt.Errorf("%w: subject is required", domain.ErrValidation))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded csv: %w", err)
	}
	defer file.Close()

	parsed, err := csvio.ParseRecipients(file)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := observability.WithCorrelationID(c.Context(), requestCorrelationID(c))

	result, err := h.service.SubmitBatch(ctx, parsed.Recipients, subject, body, parsed.Skipped)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(submitBatchResponse{
		BatchID: result.BatchID,
		Total:   result.Total,
		Skipped: result.Skipped,
	})
}

func (h *CertificateHandler) GetProgress(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))

	progress, err := h.service.Progress(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(progressResponse{
		BatchID: progress.BatchID,
		Total:   progress.Total,
		Sent:    progress.Sent,
		Failed:  progress.Failed,
		Pending: progress.Pending,
		Done:    progress.Done,
	})
}

func (h *CertificateHandler) ListBatch(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))

	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	certificates, total, err := h.service.ListStatuses(c.Context(), batchID, params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]certificateResponse, 0, len(certificates))
	for _, cert := range certificates {
		data = append(data, certificateResponse{
			ID:           cert.ID,
			Name:         cert.Name,
			Email:        cert.Email,
			Status:       cert.Status.String(),
			ErrorMessage: cert.ErrorMessage,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listBatchResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *CertificateHandler) RetryBatch(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))

	var req retryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return toHTTPError(fmt.Errorf("%w: subject is required", domain.ErrValidation))
	}

	ctx := observability.WithCorrelationID(c.Context(), requestCorrelationID(c))

	requeued, err := h.service.Retry(ctx, batchID, req.Subject, req.Body)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(retryResponse{
		BatchID:  batchID,
		Requeued: requeued,
	})
}

func (h *CertificateHandler) DownloadArchive(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))

	// Buffer the archive so errors can still map to an HTTP status.
	var buf bytes.Buffer
	if err := h.service.ExportArchive(c.Context(), batchID, &buf); err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="certificates_%s.zip"`, batchID))

	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

func (h *CertificateHandler) UploadTemplate(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "template file is required")
	}
	if fileHeader.Size > maxTemplateSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "template file too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded template: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxTemplateSize))
	if err != nil {
		return fmt.Errorf("failed to read uploaded template: %w", err)
	}

	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return toHTTPError(fmt.Errorf("%w: template must be a valid PNG", domain.ErrValidation))
	}

	if err := writeTemplateAtomically(h.templatePath, data); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"path": h.templatePath,
	})
}

// writeTemplateAtomically replaces the active template via a same-directory
// rename so a concurrent render never reads a half-written file.
func writeTemplateAtomically(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create template dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".template-*.png")
	if err != nil {
		return fmt.Errorf("failed to create template temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write template temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close template temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace template: %w", err)
	}

	return nil
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNothingToRetry):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
