package service

import (
	"context"
	"sort"
	"sync"

	"github.com/certforge/certforge/internal/domain"
	"github.com/certforge/certforge/internal/mailer"
	"github.com/certforge/certforge/internal/queue"
	"github.com/certforge/certforge/internal/repository"
)

// memoryRepo is an in-memory CertificateRepository with real claim semantics.
type memoryRepo struct {
	mu    sync.Mutex
	certs map[string]*domain.Certificate
}

func newMemoryRepo(certs ...*domain.Certificate) *memoryRepo {
	r := &memoryRepo{certs: make(map[string]*domain.Certificate)}
	for _, c := range certs {
		copied := *c
		r.certs[c.ID] = &copied
	}
	return r
}

func (r *memoryRepo) CreateBatch(_ context.Context, certs []*domain.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range certs {
		copied := *c
		r.certs[c.ID] = &copied
	}
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryRepo) sortedBatch(batchID string) []*domain.Certificate {
	out := make([]*domain.Certificate, 0, len(r.certs))
	for _, c := range r.certs {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) ListByBatch(_ context.Context, batchID string, params repository.ListParams) ([]domain.Certificate, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Certificate
	for _, c := range r.sortedBatch(batchID) {
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (r *memoryRepo) ListAllByBatch(_ context.Context, batchID string) ([]domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Certificate
	for _, c := range r.sortedBatch(batchID) {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memoryRepo) ClaimNextPending(_ context.Context, batchID string) (*domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.sortedBatch(batchID) {
		if c.Status == domain.StatusPending {
			c.Status = domain.StatusInProgress
			copied := *c
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRepo) MarkSent(_ context.Context, id, filePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.certs[id]
	if !ok || c.Status != domain.StatusInProgress {
		return domain.ErrConflict
	}
	c.Status = domain.StatusSent
	c.FilePath = &filePath
	c.ErrorMessage = nil
	return nil
}

func (r *memoryRepo) MarkFailed(_ context.Context, id, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.certs[id]
	if !ok || c.Status != domain.StatusInProgress {
		return domain.ErrConflict
	}
	c.Status = domain.StatusFailed
	c.ErrorMessage = &errorMessage
	return nil
}

func (r *memoryRepo) ResetStatus(_ context.Context, batchID string, from, to domain.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, c := range r.certs {
		if c.BatchID == batchID && c.Status == from {
			c.Status = to
			if to == domain.StatusPending {
				c.ErrorMessage = nil
			}
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) CountByBatchAndStatus(_ context.Context, batchID string, status domain.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, c := range r.certs {
		if c.BatchID == batchID && c.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) BatchSummary(_ context.Context, batchID string) ([]repository.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus := make(map[domain.Status]int)
	for _, c := range r.certs {
		if c.BatchID == batchID {
			byStatus[c.Status]++
		}
	}

	out := make([]repository.StatusCount, 0, len(byStatus))
	for status, count := range byStatus {
		out = append(out, repository.StatusCount{Status: status, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (r *memoryRepo) statusOf(id string) domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.certs[id].Status
}

type fakeRenderer struct {
	renderFunc func(ctx context.Context, cert domain.Certificate, outputPath string) error
}

func (f *fakeRenderer) Render(ctx context.Context, cert domain.Certificate, outputPath string) error {
	if f.renderFunc != nil {
		return f.renderFunc(ctx, cert, outputPath)
	}
	return nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []mailer.Message
	sendFunc func(ctx context.Context, msg mailer.Message) error
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if f.sendFunc != nil {
		return f.sendFunc(ctx, msg)
	}
	return nil
}

type fakeLimiter struct {
	mu       sync.Mutex
	waits    int
	waitFunc func(ctx context.Context, resource string) error
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeLimiter) Wait(ctx context.Context, resource string) error {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()

	if f.waitFunc != nil {
		return f.waitFunc(ctx, resource)
	}
	return nil
}

type fakePublisher struct {
	mu          sync.Mutex
	published   []queue.DispatchMessage
	publishFunc func(ctx context.Context, queueName string, msg queue.DispatchMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DispatchMessage) error {
	f.mu.Lock()
	f.published = append(f.published, msg)
	f.mu.Unlock()

	if f.publishFunc != nil {
		return f.publishFunc(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFunc func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFunc != nil {
		return f.consumeFunc(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }
