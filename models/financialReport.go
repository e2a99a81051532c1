package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/backoffice/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FinancialReport is an immutable snapshot of one report run.
// Regenerating a report stores a new row; rows are never updated.
type FinancialReport struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	TenantId    string         `gorm:"size:64;not null;index:idx_fr_tenant_kind,priority:1" json:"tenant_id"`
	ReportKind  ReportKind     `gorm:"size:32;not null;index:idx_fr_tenant_kind,priority:2" json:"report_kind"`
	StartDate   *time.Time     `json:"start_date"`
	EndDate     time.Time      `gorm:"not null" json:"end_date"`
	GeneratedBy string         `gorm:"size:64;not null" json:"generated_by"`
	GeneratedAt time.Time      `gorm:"not null" json:"generated_at"`
	Payload     datatypes.JSON `json:"payload"`
	ArchiveURL  *string        `gorm:"size:512" json:"archive_url"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (r *FinancialReport) BeforeUpdate(tx *gorm.DB) error {
	return fmt.Errorf("%w: financial reports are immutable", utils.ErrInvalidInput)
}

func CreateFinancialReport(tx *gorm.DB, report *FinancialReport) error {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	return tx.Create(report).Error
}

func GetFinancialReport(ctx context.Context, db *gorm.DB, tenantId string, id string) (*FinancialReport, error) {
	var result FinancialReport
	err := db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantId, id).Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: report %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &result, nil
}

// ListFinancialReports returns the tenant's reports, newest first; kind nil lists all kinds.
func ListFinancialReports(ctx context.Context, db *gorm.DB, tenantId string, kind *ReportKind) ([]FinancialReport, error) {
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if kind != nil {
		q = q.Where("report_kind = ?", *kind)
	}
	var rows []FinancialReport
	err := q.Order("generated_at DESC").Find(&rows).Error
	return rows, err
}
