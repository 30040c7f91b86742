package repository

import (
	"context"
	"errors"

	"github.com/certforge/certforge/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	Status   *domain.Status
	Page     int
	PageSize int
}

type StatusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int           `gorm:"column:count"`
}

type CertificateRepository interface {
	CreateBatch(ctx context.Context, certificates []*domain.Certificate) error
	GetByID(ctx context.Context, id string) (*domain.Certificate, error)
	ListByBatch(ctx context.Context, batchID string, params ListParams) ([]domain.Certificate, int64, error)
	ListAllByBatch(ctx context.Context, batchID string) ([]domain.Certificate, error)
	ClaimNextPending(ctx context.Context, batchID string) (*domain.Certificate, error)
	MarkSent(ctx context.Context, id string, filePath string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	ResetStatus(ctx context.Context, batchID string, from, to domain.Status) (int64, error)
	CountByBatchAndStatus(ctx context.Context, batchID string, status domain.Status) (int64, error)
	BatchSummary(ctx context.Context, batchID string) ([]StatusCount, error)
}

type GormCertificateRepo struct {
	db *gorm.DB
}

func NewGormCertificateRepo(db *gorm.DB) *GormCertificateRepo {
	return &GormCertificateRepo{db: db}
}

func (r *GormCertificateRepo) CreateBatch(ctx context.Context, certificates []*domain.Certificate) error {
	models := make([]CertificateModel, 0, len(certificates))
	modelIndexes := make([]int, 0, len(certificates))
	for i, c := range certificates {
		model := certificateModelFromDomain(c)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(certificates) && certificates[idx] != nil {
			*certificates[idx] = *certificateModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormCertificateRepo) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	var model CertificateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return certificateModelToDomain(&model), nil
}

func (r *GormCertificateRepo) ListByBatch(ctx context.Context, batchID string, params ListParams) ([]domain.Certificate, int64, error) {
	query := r.db.WithContext(ctx).Model(&CertificateModel{}).Where("batch_id = ?", batchID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []CertificateModel
	err := query.
		Order("created_at ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	certificates := make([]domain.Certificate, 0, len(models))
	for i := range models {
		certificates = append(certificates, *certificateModelToDomain(&models[i]))
	}

	return certificates, total, nil
}

func (r *GormCertificateRepo) ListAllByBatch(ctx context.Context, batchID string) ([]domain.Certificate, error) {
	var models []CertificateModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	certificates := make([]domain.Certificate, 0, len(models))
	for i := range models {
		certificates = append(certificates, *certificateModelToDomain(&models[i]))
	}

	return certificates, nil
}

// ClaimNextPending atomically flips the oldest PENDING record of the batch to
// IN_PROGRESS and returns it. SKIP LOCKED keeps two runs that race on the same
// batch from ever claiming the same record. Returns ErrNotFound when the batch
// has no PENDING records left.
func (r *GormCertificateRepo) ClaimNextPending(ctx context.Context, batchID string) (*domain.Certificate, error) {
	var model CertificateModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("batch_id = ? AND status = ?", batchID, domain.StatusPending).
			Order("created_at ASC, id ASC").
			First(&model).Error
		if err != nil {
			return err
		}

		model.Status = domain.StatusInProgress
		return tx.Model(&model).Update("status", domain.StatusInProgress).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return certificateModelToDomain(&model), nil
}

func (r *GormCertificateRepo) MarkSent(ctx context.Context, id string, filePath string) error {
	result := r.db.WithContext(ctx).
		Model(&CertificateModel{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(map[string]any{
			"status":    domain.StatusSent,
			"file_path": filePath,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormCertificateRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&CertificateModel{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ResetStatus bulk-moves every record of the batch in `from` to `to`. When the
// target is PENDING the error message is cleared, so requeued records re-enter
// the lifecycle clean. Returns the number of records changed.
func (r *GormCertificateRepo) ResetStatus(ctx context.Context, batchID string, from, to domain.Status) (int64, error) {
	updates := map[string]any{"status": to}
	if to == domain.StatusPending {
		updates["error_message"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&CertificateModel{}).
		Where("batch_id = ? AND status = ?", batchID, from).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormCertificateRepo) CountByBatchAndStatus(ctx context.Context, batchID string, status domain.Status) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CertificateModel{}).
		Where("batch_id = ? AND status = ?", batchID, status).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormCertificateRepo) BatchSummary(ctx context.Context, batchID string) ([]StatusCount, error) {
	var summaries []StatusCount
	err := r.db.WithContext(ctx).
		Model(&CertificateModel{}).
		Select("status, COUNT(*) as count").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
