package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/certforge/certforge/internal/domain"
	"github.com/certforge/certforge/internal/mailer"
	"github.com/certforge/certforge/internal/observability"
	"github.com/certforge/certforge/internal/ratelimit"
	"github.com/certforge/certforge/internal/render"
	"github.com/certforge/certforge/internal/repository"
)

const smtpRateLimitResource = "smtp"

type DispatcherConfig struct {
	ArtifactDir string
	SendDelay   time.Duration
}

// Dispatcher drains a batch's PENDING certificates one at a time, rendering
// and emailing each. Per-record failures mark the record FAILED and the run
// continues; only context cancellation stops a run early.
type Dispatcher struct {
	repo     repository.CertificateRepository
	renderer render.Renderer
	sender   mailer.Sender
	limiter  ratelimit.RateLimiter
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      DispatcherConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewDispatcher(
	repo repository.CertificateRepository,
	renderer render.Renderer,
	sender mailer.Sender,
	limiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg DispatcherConfig,
) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("certificate repository is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mail sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "generated"
	}

	return &Dispatcher{
		repo:     repo,
		renderer: renderer,
		sender:   sender,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepWithContext,
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run processes every PENDING certificate of the batch until none remain.
// Records stranded IN_PROGRESS by an earlier crash are reset to PENDING
// first, so a redelivered run trigger resumes exactly where the crash left
// off.
func (d *Dispatcher) Run(ctx context.Context, batchID, subject, body string) error {
	logger := observability.LoggerWithCorrelation(ctx, d.logger).With(zap.String("batchId", batchID))

	d.metrics.DispatcherRunStarted()
	defer d.metrics.DispatcherRunFinished()

	recovered, err := d.repo.ResetStatus(ctx, batchID, domain.StatusInProgress, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to recover stale claims for batch %s: %w", batchID, err)
	}
	if recovered > 0 {
		logger.Warn("recovered stale in-progress certificates", zap.Int64("count", recovered))
	}

	logger.Info("dispatch run started")

	var sent, failed int
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("dispatch run interrupted",
				zap.Int("sent", sent),
				zap.Int("failed", failed),
			)
			return err
		}

		cert, err := d.repo.ClaimNextPending(ctx, batchID)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to claim next pending certificate: %w", err)
		}

		if d.dispatchOne(ctx, logger, *cert, subject, body) {
			sent++
		} else {
			failed++
		}

		d.sleep(ctx, d.cfg.SendDelay)
	}

	logger.Info("dispatch run finished",
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)

	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, logger *zap.Logger, cert domain.Certificate, subject, body string) bool {
	logger = logger.With(
		zap.String("certificateId", cert.ID),
		zap.String("email", cert.Email),
	)

	outputPath := filepath.Join(d.cfg.ArtifactDir, cert.ID+".pdf")
	defer func() {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove certificate artifact", zap.Error(err))
		}
	}()

	renderStart := d.now()
	if err := d.renderer.Render(ctx, cert, outputPath); err != nil {
		logger.Error("failed to render certificate", zap.Error(err))
		d.metrics.RecordCertificateFailed("render")
		d.markFailed(ctx, logger, cert.ID, fmt.Sprintf("render: %v", err))
		return false
	}
	d.metrics.ObserveRenderDuration(d.now().Sub(renderStart))

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, smtpRateLimitResource); err != nil {
			logger.Error("rate limiter wait failed", zap.Error(err))
			d.metrics.RecordCertificateFailed("ratelimit")
			d.markFailed(ctx, logger, cert.ID, fmt.Sprintf("ratelimit: %v", err))
			return false
		}
	}

	msg := mailer.Message{
		RecipientName:  cert.Name,
		RecipientEmail: cert.Email,
		Subject:        mailer.RenderTemplate(subject, cert.Name),
		Body:           mailer.RenderTemplate(body, cert.Name),
		AttachmentPath: outputPath,
	}

	sendStart := d.now()
	if err := d.sender.Send(ctx, msg); err != nil {
		logger.Error("failed to send certificate email", zap.Error(err))
		d.metrics.RecordCertificateFailed("send")
		d.markFailed(ctx, logger, cert.ID, fmt.Sprintf("send: %v", err))
		return false
	}
	d.metrics.ObserveSendDuration(d.now().Sub(sendStart))

	if err := d.repo.MarkSent(ctx, cert.ID, outputPath); err != nil {
		logger.Error("failed to mark certificate sent", zap.Error(err))
		return false
	}

	d.metrics.RecordCertificateSent()
	logger.Info("certificate dispatched")

	return true
}

func (d *Dispatcher) markFailed(ctx context.Context, logger *zap.Logger, certificateID, reason string) {
	if err := d.repo.MarkFailed(ctx, certificateID, reason); err != nil {
		logger.Error("failed to mark certificate failed", zap.Error(err))
	}
}
