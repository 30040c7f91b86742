package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/certforge/certforge/internal/domain"
	"github.com/certforge/certforge/internal/queue"
	"github.com/certforge/certforge/internal/repository"
)

func newTestService(t *testing.T, repo *memoryRepo, publisher *fakePublisher, renderer *fakeRenderer) *CertificateService {
	t.Helper()

	svc, err := NewCertificateService(repo, publisher, renderer, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCertificateService() unexpected error: %v", err)
	}

	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}
	return svc
}

func TestSubmitBatch(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	publisher := &fakePublisher{}
	svc := newTestService(t, repo, publisher, &fakeRenderer{})

	recipients := []domain.Recipient{
		{Name: "Jane Doe", Email: "jane@example.com"},
		{Name: "John Smith", Email: "JOHN@example.com"},
	}

	result, err := svc.SubmitBatch(context.Background(), recipients, "Subject", "Body", 1)
	if err != nil {
		t.Fatalf("SubmitBatch() unexpected error: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if result.BatchID == "" {
		t.Error("expected non-empty batch id")
	}

	stored, err := repo.ListAllByBatch(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("ListAllByBatch() unexpected error: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored certificates, got %d", len(stored))
	}
	for _, c := range stored {
		if c.Status != domain.StatusPending {
			t.Errorf("certificate %s status = %s, want PENDING", c.ID, c.Status)
		}
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 dispatch trigger, got %d", len(publisher.published))
	}
	msg := publisher.published[0]
	if msg.BatchID != result.BatchID || msg.Subject != "Subject" {
		t.Errorf("unexpected dispatch message: %+v", msg)
	}
}

func TestSubmitBatchEmptyRecipients(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newMemoryRepo(), &fakePublisher{}, &fakeRenderer{})

	_, err := svc.SubmitBatch(context.Background(), nil, "Subject", "Body", 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "A", "a@example.com", domain.StatusSent),
		newTestCertificate("c2", "b1", "B", "b@example.com", domain.StatusFailed),
		newTestCertificate("c3", "b1", "C", "c@example.com", domain.StatusPending),
		newTestCertificate("c4", "b1", "D", "d@example.com", domain.StatusInProgress),
	)
	svc := newTestService(t, repo, &fakePublisher{}, &fakeRenderer{})

	progress, err := svc.Progress(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Progress() unexpected error: %v", err)
	}

	if progress.Total != 4 || progress.Sent != 1 || progress.Failed != 1 {
		t.Errorf("progress = %+v", progress)
	}
	// IN_PROGRESS counts as pending from the caller's point of view.
	if progress.Pending != 2 {
		t.Errorf("Pending = %d, want 2", progress.Pending)
	}
	if progress.Done {
		t.Error("Done = true, want false")
	}
}

func TestProgressDoneBatch(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "A", "a@example.com", domain.StatusSent),
		newTestCertificate("c2", "b1", "B", "b@example.com", domain.StatusFailed),
	)
	svc := newTestService(t, repo, &fakePublisher{}, &fakeRenderer{})

	progress, err := svc.Progress(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Progress() unexpected error: %v", err)
	}
	if !progress.Done {
		t.Error("Done = false, want true")
	}
}

func TestProgressUnknownBatch(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newMemoryRepo(), &fakePublisher{}, &fakeRenderer{})

	progress, err := svc.Progress(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Progress() unexpected error: %v", err)
	}
	if progress.Total != 0 || progress.Done {
		t.Errorf("progress = %+v, want empty and not done", progress)
	}
}

func TestListStatusesFiltered(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "A", "a@example.com", domain.StatusSent),
		newTestCertificate("c2", "b1", "B", "b@example.com", domain.StatusFailed),
	)
	svc := newTestService(t, repo, &fakePublisher{}, &fakeRenderer{})

	failed := domain.StatusFailed
	certs, total, err := svc.ListStatuses(context.Background(), "b1", repository.ListParams{Status: &failed})
	if err != nil {
		t.Fatalf("ListStatuses() unexpected error: %v", err)
	}
	if total != 1 || len(certs) != 1 || certs[0].ID != "c2" {
		t.Fatalf("unexpected result: total=%d certs=%+v", total, certs)
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "A", "a@example.com", domain.StatusFailed),
		newTestCertificate("c2", "b1", "B", "b@example.com", domain.StatusSent),
	)
	publisher := &fakePublisher{}
	svc := newTestService(t, repo, publisher, &fakeRenderer{})

	requeued, err := svc.Retry(context.Background(), "b1", "Subject", "Body")
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}
	if requeued != 1 {
		t.Errorf("requeued = %d, want 1", requeued)
	}
	if got := repo.statusOf("c1"); got != domain.StatusPending {
		t.Errorf("c1 status = %s, want PENDING", got)
	}
	if got := repo.statusOf("c2"); got != domain.StatusSent {
		t.Errorf("c2 status = %s, want SENT", got)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 dispatch trigger, got %d", len(publisher.published))
	}
}

func TestRetryResumesAfterPublishFailure(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "A", "a@example.com", domain.StatusFailed),
	)

	broken := errors.New("broker down")
	publisher := &fakePublisher{
		publishFunc: func(context.Context, string, queue.DispatchMessage) error {
			return broken
		},
	}
	svc := newTestService(t, repo, publisher, &fakeRenderer{})

	// The reset lands but the trigger does not: the record is now PENDING.
	if _, err := svc.Retry(context.Background(), "b1", "Subject", "Body"); !errors.Is(err, broken) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if got := repo.statusOf("c1"); got != domain.StatusPending {
		t.Fatalf("c1 status = %s, want PENDING", got)
	}

	// A second retry finds no FAILED records but must still start a run for
	// the stranded PENDING one.
	publisher.publishFunc = nil
	requeued, err := svc.Retry(context.Background(), "b1", "Subject", "Body")
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}
	if requeued != 1 {
		t.Errorf("requeued = %d, want 1", requeued)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", len(publisher.published))
	}
}

func TestRetryNothingToRetry(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "A", "a@example.com", domain.StatusSent),
	)
	publisher := &fakePublisher{}
	svc := newTestService(t, repo, publisher, &fakeRenderer{})

	_, err := svc.Retry(context.Background(), "b1", "Subject", "Body")
	if !errors.Is(err, domain.ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry, got %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("expected no dispatch trigger, got %d", len(publisher.published))
	}
}

func TestExportArchive(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "Jane Doe", "jane@example.com", domain.StatusSent),
		newTestCertificate("c2", "b1", "John Smith", "john@example.com", domain.StatusFailed),
		newTestCertificate("c3", "b1", "Ada Lovelace", "ada@example.com", domain.StatusSent),
	)

	renderer := &fakeRenderer{
		renderFunc: func(_ context.Context, cert domain.Certificate, outputPath string) error {
			return os.WriteFile(outputPath, []byte("pdf:"+cert.ID), 0o600)
		},
	}
	svc := newTestService(t, repo, &fakePublisher{}, renderer)

	var buf bytes.Buffer
	if err := svc.ExportArchive(context.Background(), "b1", &buf); err != nil {
		t.Fatalf("ExportArchive() unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader() unexpected error: %v", err)
	}

	// The archive covers the whole batch, failed deliveries included.
	if len(zr.File) != 3 {
		t.Fatalf("expected 3 archive entries, got %d", len(zr.File))
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["Jane_Doe_c1.pdf"] || !names["John_Smith_c2.pdf"] || !names["Ada_Lovelace_c3.pdf"] {
		t.Fatalf("unexpected entry names: %v", names)
	}
}

func TestExportArchiveIncludesFailedRecords(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "Jane Doe", "jane@example.com", domain.StatusFailed),
		newTestCertificate("c2", "b1", "John Smith", "john@example.com", domain.StatusFailed),
	)

	renderer := &fakeRenderer{
		renderFunc: func(_ context.Context, cert domain.Certificate, outputPath string) error {
			return os.WriteFile(outputPath, []byte("pdf:"+cert.ID), 0o600)
		},
	}
	svc := newTestService(t, repo, &fakePublisher{}, renderer)

	var buf bytes.Buffer
	if err := svc.ExportArchive(context.Background(), "b1", &buf); err != nil {
		t.Fatalf("ExportArchive() unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader() unexpected error: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 archive entries, got %d", len(zr.File))
	}
}

func TestExportArchiveSkipsRenderFailures(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(
		newTestCertificate("c1", "b1", "Jane Doe", "jane@example.com", domain.StatusSent),
		newTestCertificate("c2", "b1", "John Smith", "john@example.com", domain.StatusSent),
	)

	renderer := &fakeRenderer{
		renderFunc: func(_ context.Context, cert domain.Certificate, outputPath string) error {
			if cert.ID == "c1" {
				return errors.New("corrupt template")
			}
			return os.WriteFile(outputPath, []byte("pdf:"+cert.ID), 0o600)
		},
	}
	svc := newTestService(t, repo, &fakePublisher{}, renderer)

	var buf bytes.Buffer
	if err := svc.ExportArchive(context.Background(), "b1", &buf); err != nil {
		t.Fatalf("ExportArchive() unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader() unexpected error: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("expected 1 archive entry, got %d", len(zr.File))
	}
}

func TestExportArchiveEmptyBatch(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newMemoryRepo(), &fakePublisher{}, &fakeRenderer{})

	var buf bytes.Buffer
	err := svc.ExportArchive(context.Background(), "missing", &buf)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitBatchPublishFailure(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{
		publishFunc: func(context.Context, string, queue.DispatchMessage) error {
			return errors.New("broker down")
		},
	}
	svc := newTestService(t, newMemoryRepo(), publisher, &fakeRenderer{})

	_, err := svc.SubmitBatch(context.Background(), []domain.Recipient{{Name: "A", Email: "a@example.com"}}, "Subject", "Body", 0)
	if err == nil {
		t.Fatal("expected error when publish fails")
	}
}
