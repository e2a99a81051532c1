package models

import (
	"github.com/mmdatafocus/backoffice/config"
	"gorm.io/gorm"
)

// MigrateTable migrates the engine tables on the process database.
func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		config.GetLogger().WithError(err).Fatal("migrate engine tables")
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Tenant{}, &Actor{},
		&Transaction{}, &Ledger{},
		&FinancialReport{},
	)
}
