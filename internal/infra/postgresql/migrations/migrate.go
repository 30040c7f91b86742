package migrations

import (
	"github.com/certforge/certforge/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_certificates",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.CertificateModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_certificates_batch_id ON certificates (batch_id)`,
					`CREATE INDEX IF NOT EXISTS idx_certificates_batch_status_created ON certificates (batch_id, status, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_certificates_pending ON certificates (batch_id, created_at) WHERE status = 'PENDING'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.CertificateModel{})
			},
		},
	})

	return m.Migrate()
}
