package service

import (
	"context"
	"io"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/platform/storage"
	"github.com/vitalab/vitalab-backend/internal/repo/postgres"
	"github.com/vitalab/vitalab-backend/pkg/logger"
)

type ReportService interface {
	ListForUser(ctx context.Context, userID int64) ([]domain.HealthReport, error)
	// Get enforces ownership: non-admin callers only see their own reports.
	Get(ctx context.Context, id, callerID int64, callerRole string) (*domain.HealthReport, error)
	Upload(ctx context.Context, req *domain.UploadReportRequest, filename string, file io.Reader) (*domain.HealthReport, error)
	// Delete removes the row and its stored file; owners and admins only.
	Delete(ctx context.Context, id, callerID int64, callerRole string) error
}

type reportService struct {
	reports postgres.ReportsRepo
	files   storage.FileStore
}

func NewReportService(reports postgres.ReportsRepo, files storage.FileStore) ReportService {
	return &reportService{reports: reports, files: files}
}

func (s *reportService) ListForUser(ctx context.Context, userID int64) ([]domain.HealthReport, error) {
	reports, err := s.reports.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "查询报告失败", err)
	}
	return reports, nil
}

func (s *reportService) Get(ctx context.Context, id, callerID int64, callerRole string) (*domain.HealthReport, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "查询报告失败", err)
	}
	if report == nil {
		return nil, domain.E(domain.ErrNotFound, "报告不存在")
	}
	if report.UserID != callerID && callerRole != domain.RoleAdmin {
		return nil, domain.E(domain.ErrForbidden, "无权查看该报告")
	}
	return report, nil
}

func (s *reportService) Upload(ctx context.Context, req *domain.UploadReportRequest, filename string, file io.Reader) (*domain.HealthReport, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}

	path, err := s.files.Save("reports", filename, file)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "报告上传失败", err)
	}

	report, err := s.reports.Upsert(ctx, req.UserID, req.ReportType, path, "")
	if err != nil {
		if removeErr := s.files.Remove(path); removeErr != nil {
			logger.WarnContext(ctx, "Failed to remove orphaned report file", "error", removeErr, "path", path)
		}
		return nil, domain.Wrap(domain.ErrServerError, "报告上传失败", err)
	}

	return report, nil
}

func (s *reportService) Delete(ctx context.Context, id, callerID int64, callerRole string) error {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return domain.Wrap(domain.ErrServerError, "删除报告失败", err)
	}
	if report == nil {
		return domain.E(domain.ErrNotFound, "报告不存在")
	}
	if report.UserID != callerID && callerRole != domain.RoleAdmin {
		return domain.E(domain.ErrForbidden, "无权删除该报告")
	}

	if err := s.reports.Delete(ctx, id); err != nil {
		return domain.Wrap(domain.ErrServerError, "删除报告失败", err)
	}

	// The row is gone; a stale file on disk is only worth a warning.
	if err := s.files.Remove(report.ReportPath); err != nil {
		logger.WarnContext(ctx, "Failed to remove deleted report file", "error", err, "path", report.ReportPath)
	}

	return nil
}
