package database

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/cins/internal/macros"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationRenumberMacroOrder     = "2026-10-01_renumber_macro_order"
	migrationPruneOrphanMemberships = "2026-10-08_prune_orphan_memberships"
	migrationLedgerTable            = "db_migrations"
)

// appliedMigration is one row of the ledger.
type appliedMigration struct {
	Name      string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAt int64  `gorm:"column:applied_at_s;not null"`
}

func (appliedMigration) TableName() string {
	return migrationLedgerTable
}

type dataMigration struct {
	name  string
	apply func(tx *gorm.DB) error
}

// dataMigrations run in order, each at most once per database.
var dataMigrations = []dataMigration{
	{name: migrationRenumberMacroOrder, apply: macros.RenumberMemberships},
	{name: migrationPruneOrphanMemberships, apply: pruneAndRenumberMemberships},
}

func pruneAndRenumberMemberships(tx *gorm.DB) error {
	if _, err := macros.PruneOrphanMemberships(tx); err != nil {
		return err
	}
	return macros.RenumberMemberships(tx)
}

// applyMigrations runs every pending data migration in its own transaction
// together with its ledger row.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	var recorded []string
	if err := db.Model(&appliedMigration{}).Pluck("name", &recorded).Error; err != nil {
		return fmt.Errorf("read migration ledger: %w", err)
	}
	done := make(map[string]struct{}, len(recorded))
	for _, name := range recorded {
		done[name] = struct{}{}
	}

	for _, migration := range dataMigrations {
		if _, ok := done[migration.name]; ok {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&appliedMigration{Name: migration.name, AppliedAt: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}
