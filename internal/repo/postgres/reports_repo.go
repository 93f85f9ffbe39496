package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalab/vitalab-backend/internal/domain"
)

type ReportsRepo interface {
	// Upsert replaces the existing report of the same type for the user.
	Upsert(ctx context.Context, userID int64, reportType, reportPath, iconPath string) (*domain.HealthReport, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.HealthReport, error)
	FindByID(ctx context.Context, id int64) (*domain.HealthReport, error)
	Delete(ctx context.Context, id int64) error
}

type reportsRepo struct {
	pool *pgxpool.Pool
}

func NewReportsRepo(pool *pgxpool.Pool) ReportsRepo {
	return &reportsRepo{pool: pool}
}

const reportCols = `id, user_id, report_type, report_path, COALESCE(report_icon_path, ''), created_at, updated_at`

func scanReport(row pgx.Row) (*domain.HealthReport, error) {
	var hr domain.HealthReport
	err := row.Scan(
		&hr.ID, &hr.UserID, &hr.ReportType, &hr.ReportPath, &hr.ReportIconPath, &hr.CreatedAt, &hr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &hr, nil
}

func (r *reportsRepo) Upsert(ctx context.Context, userID int64, reportType, reportPath, iconPath string) (*domain.HealthReport, error) {
	const q = `
		INSERT INTO health_reports (user_id, report_type, report_path, report_icon_path)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (user_id, report_type) DO UPDATE SET
			report_path = EXCLUDED.report_path,
			report_icon_path = EXCLUDED.report_icon_path,
			updated_at = now()
		RETURNING ` + reportCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanReport(r.pool.QueryRow(ctx, q, userID, reportType, reportPath, iconPath))
}

func (r *reportsRepo) ListByUser(ctx context.Context, userID int64) ([]domain.HealthReport, error) {
	const q = `SELECT ` + reportCols + ` FROM health_reports WHERE user_id = $1 ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.HealthReport
	for rows.Next() {
		var hr domain.HealthReport
		if err := rows.Scan(
			&hr.ID, &hr.UserID, &hr.ReportType, &hr.ReportPath, &hr.ReportIconPath, &hr.CreatedAt, &hr.UpdatedAt,
		); err != nil {
			return nil, err
		}
		reports = append(reports, hr)
	}

	return reports, rows.Err()
}

func (r *reportsRepo) FindByID(ctx context.Context, id int64) (*domain.HealthReport, error) {
	const q = `SELECT ` + reportCols + ` FROM health_reports WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	hr, err := scanReport(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return hr, err
}

func (r *reportsRepo) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM health_reports WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
