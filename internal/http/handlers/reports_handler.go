package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vitalab/vitalab-backend/internal/domain"
	mw "github.com/vitalab/vitalab-backend/internal/http/middleware"
	"github.com/vitalab/vitalab-backend/internal/http/response"
)

const maxUploadBytes = 32 << 20

// ListReports returns the caller's reports.
// GET /health_reports
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r)

	reports, err := h.reports.ListForUser(r.Context(), claims.Sub)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
	})
}

// GetReport returns one report; owners and admins only.
// GET /health_reports/{id}
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r)

	id, err := pathID(r)
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "报告ID格式错误"))
		return
	}

	report, err := h.reports.Get(r.Context(), id, claims.Sub, claims.Role)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"report": report,
	})
}

// DeleteReport removes a report and its stored file; owners and admins only.
// DELETE /health_reports/{id}
func (h *Handlers) DeleteReport(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r)

	id, err := pathID(r)
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "报告ID格式错误"))
		return
	}

	if err := h.reports.Delete(r.Context(), id, claims.Sub, claims.Role); err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message": "健康报告删除成功",
	})
}

// UpdateProfile lets the caller change their own nickname, email or
// password.
// POST /health_reports/update_profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r)

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), claims.Sub, &req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message": "个人信息更新成功",
		"user":    user,
	})
}

// UploadReport stores a report file for the caller; re-uploading the same
// report type replaces the previous file reference.
// POST /health_reports/upload (multipart: report_type, file)
func (h *Handlers) UploadReport(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "缺少报告文件"))
		return
	}
	defer file.Close()

	req := &domain.UploadReportRequest{
		UserID:     claims.Sub,
		ReportType: r.FormValue("report_type"),
	}

	report, err := h.reports.Upload(r.Context(), req, header.Filename, file)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message": "报告上传成功",
		"report":  report,
	})
}

// UploadAvatar stores the caller's avatar image.
// POST /health_reports/upload_avatar (multipart: file)
func (h *Handlers) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	claims := mw.Claims(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "缺少头像文件"))
		return
	}
	defer file.Close()

	path, err := h.users.UploadAvatar(r.Context(), claims.Sub, header.Filename, file)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message":     "头像上传成功",
		"avatar_path": path,
	})
}
