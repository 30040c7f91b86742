package repository

import (
	"time"

	"github.com/certforge/certforge/internal/domain"
)

// CertificateModel is the persistence model for the certificates table.
type CertificateModel struct {
	ID           string        `gorm:"type:uuid;primaryKey"`
	BatchID      string        `gorm:"type:uuid;not null"`
	Name         string        `gorm:"type:varchar(255);not null"`
	Email        string        `gorm:"type:varchar(255);not null"`
	Status       domain.Status `gorm:"type:varchar(20);not null"`
	FilePath     *string       `gorm:"type:text"`
	ErrorMessage *string       `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (CertificateModel) TableName() string {
	return "certificates"
}

func certificateModelFromDomain(c *domain.Certificate) *CertificateModel {
	if c == nil {
		return nil
	}

	return &CertificateModel{
		ID:           c.ID,
		BatchID:      c.BatchID,
		Name:         c.Name,
		Email:        c.Email,
		Status:       c.Status,
		FilePath:     c.FilePath,
		ErrorMessage: c.ErrorMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func certificateModelToDomain(m *CertificateModel) *domain.Certificate {
	if m == nil {
		return nil
	}

	return &domain.Certificate{
		ID:           m.ID,
		BatchID:      m.BatchID,
		Name:         m.Name,
		Email:        m.Email,
		Status:       m.Status,
		FilePath:     m.FilePath,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
