package domain

import (
	"fmt"
	"time"
)

// Report types match the enum in the health_reports table; each user holds
// at most one report per type.
const (
	ReportTypeGene    = "基因检查报告"
	ReportTypeProtein = "蛋白质检测报告"
)

var validReportTypes = map[string]bool{
	ReportTypeGene:    true,
	ReportTypeProtein: true,
}

func IsValidReportType(reportType string) bool {
	return validReportTypes[reportType]
}

type HealthReport struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	ReportType     string    `json:"report_type"`
	ReportPath     string    `json:"report_path"`
	ReportIconPath string    `json:"report_icon_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type UploadReportRequest struct {
	UserID     int64
	ReportType string
}

func (r *UploadReportRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if !validReportTypes[r.ReportType] {
		return fmt.Errorf("invalid report type")
	}
	return nil
}
