package service

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/certforge/internal/domain"
	"github.com/certforge/certforge/internal/observability"
	"github.com/certforge/certforge/internal/queue"
	"github.com/certforge/certforge/internal/render"
	"github.com/certforge/certforge/internal/repository"
)

// BatchSubmission is the accepted result of a batch upload.
type BatchSubmission struct {
	BatchID string
	Total   int
	Skipped int
}

// CertificateService implements the batch lifecycle: submission, progress,
// listing, retry, and archive export. Dispatch runs themselves execute in the
// queue consumers, not here.
type CertificateService struct {
	repo      repository.CertificateRepository
	publisher queue.Publisher
	renderer  render.Renderer
	metrics   *observability.Metrics
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewCertificateService(
	repo repository.CertificateRepository,
	publisher queue.Publisher,
	renderer render.Renderer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*CertificateService, error) {
	if repo == nil {
		return nil, fmt.Errorf("certificate repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CertificateService{
		repo:      repo,
		publisher: publisher,
		renderer:  renderer,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// SubmitBatch persists one PENDING certificate per recipient and publishes a
// dispatch run trigger for the new batch.
func (s *CertificateService) SubmitBatch(ctx context.Context, recipients []domain.Recipient, subject, body string, skipped int) (BatchSubmission, error) {
	if len(recipients) == 0 {
		return BatchSubmission{}, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
	}
	if subject == "" {
		return BatchSubmission{}, fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}

	batchID := s.newID()
	now := s.now().UTC()

	certificates := make([]*domain.Certificate, 0, len(recipients))
	for _, r := range recipients {
		r.Normalize()
		if err := r.Validate(); err != nil {
			return BatchSubmission{}, err
		}

		certificates = append(certificates, &domain.Certificate{
			ID:        s.newID(),
			BatchID:   batchID,
			Name:      r.Name,
			Email:     r.Email,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.repo.CreateBatch(ctx, certificates); err != nil {
		return BatchSubmission{}, fmt.Errorf("failed to create certificate batch: %w", err)
	}

	if err := s.startRun(ctx, batchID, subject, body); err != nil {
		return BatchSubmission{}, err
	}

	s.logger.Info("certificate batch submitted",
		zap.String("batchId", batchID),
		zap.Int("total", len(certificates)),
		zap.Int("skipped", skipped),
	)

	return BatchSubmission{
		BatchID: batchID,
		Total:   len(certificates),
		Skipped: skipped,
	}, nil
}

func (s *CertificateService) startRun(ctx context.Context, batchID, subject, body string) error {
	msg := queue.DispatchMessage{
		BatchID:       batchID,
		Subject:       subject,
		Body:          body,
		CorrelationID: observability.CorrelationIDFrom(ctx),
	}

	if err := s.publisher.Publish(ctx, queue.DispatchQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish dispatch trigger for batch %s: %w", batchID, err)
	}

	return nil
}

// Progress aggregates the batch's record statuses. Pending counts both
// PENDING and IN_PROGRESS records so Total == Sent + Failed + Pending.
func (s *CertificateService) Progress(ctx context.Context, batchID string) (domain.Progress, error) {
	if batchID == "" {
		return domain.Progress{}, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	counts, err := s.repo.BatchSummary(ctx, batchID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("failed to summarize batch %s: %w", batchID, err)
	}

	progress := domain.Progress{BatchID: batchID}
	for _, c := range counts {
		progress.Total += c.Count
		switch c.Status {
		case domain.StatusSent:
			progress.Sent += c.Count
		case domain.StatusFailed:
			progress.Failed += c.Count
		}
	}
	progress.Pending = progress.Total - progress.Sent - progress.Failed
	progress.Done = progress.Total > 0 && progress.Pending == 0

	return progress, nil
}

// ListStatuses returns a page of the batch's certificates, optionally
// filtered by status, plus the unfiltered-by-page total.
func (s *CertificateService) ListStatuses(ctx context.Context, batchID string, params repository.ListParams) ([]domain.Certificate, int64, error) {
	if batchID == "" {
		return nil, 0, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	certificates, total, err := s.repo.ListByBatch(ctx, batchID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list certificates for batch %s: %w", batchID, err)
	}

	return certificates, total, nil
}

// Retry resets the batch's FAILED certificates to PENDING and publishes a
// fresh run trigger. A batch with no FAILED records but leftover PENDING ones
// (a previous retry reset the records and then failed to publish) gets a new
// trigger too, so no record is ever stranded in PENDING with no way to run.
// ErrNothingToRetry when the batch has neither.
func (s *CertificateService) Retry(ctx context.Context, batchID, subject, body string) (int64, error) {
	if batchID == "" {
		return 0, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	requeued, err := s.repo.ResetStatus(ctx, batchID, domain.StatusFailed, domain.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed certificates for batch %s: %w", batchID, err)
	}
	if requeued == 0 {
		pending, err := s.repo.CountByBatchAndStatus(ctx, batchID, domain.StatusPending)
		if err != nil {
			return 0, fmt.Errorf("failed to count pending certificates for batch %s: %w", batchID, err)
		}
		if pending == 0 {
			return 0, domain.ErrNothingToRetry
		}
		requeued = pending
	}

	if err := s.startRun(ctx, batchID, subject, body); err != nil {
		return 0, err
	}

	s.metrics.RecordRetryRequeued(requeued)
	s.logger.Info("failed certificates requeued",
		zap.String("batchId", batchID),
		zap.Int64("count", requeued),
	)

	return requeued, nil
}

// ExportArchive re-renders every certificate of the batch, regardless of its
// delivery status, and streams them as a zip. Records that fail to render are
// skipped with a log line so one bad record cannot sink the whole archive.
func (s *CertificateService) ExportArchive(ctx context.Context, batchID string, w io.Writer) error {
	if batchID == "" {
		return fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	certificates, err := s.repo.ListAllByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load certificates for batch %s: %w", batchID, err)
	}
	if len(certificates) == 0 {
		return fmt.Errorf("%w: batch %s has no certificates", domain.ErrNotFound, batchID)
	}

	tempDir, err := os.MkdirTemp("", "certforge-archive-*")
	if err != nil {
		return fmt.Errorf("failed to create archive temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			s.logger.Warn("failed to remove archive temp dir", zap.Error(err))
		}
	}()

	zw := zip.NewWriter(w)

	var archived int
	for _, cert := range certificates {
		if err := ctx.Err(); err != nil {
			return err
		}

		tempPath := filepath.Join(tempDir, cert.ID+".pdf")
		if err := s.renderer.Render(ctx, cert, tempPath); err != nil {
			s.logger.Warn("skipping certificate in archive: render failed",
				zap.String("certificateId", cert.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.addToArchive(zw, cert, tempPath); err != nil {
			return err
		}
		archived++
	}

	if archived == 0 {
		return fmt.Errorf("%w: batch %s has no exportable certificates", domain.ErrNotFound, batchID)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	s.logger.Info("batch archive exported",
		zap.String("batchId", batchID),
		zap.Int("count", archived),
	)

	return nil
}

func (s *CertificateService) addToArchive(zw *zip.Writer, cert domain.Certificate, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open rendered certificate: %w", err)
	}
	defer f.Close()

	entry, err := zw.Create(archiveEntryName(cert))
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}

	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}

	return nil
}

func archiveEntryName(cert domain.Certificate) string {
	return fmt.Sprintf("%s_%s.pdf", sanitizeFilename(cert.Name), cert.ID[:min(8, len(cert.ID))])
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "certificate"
	}
	return string(out)
}
