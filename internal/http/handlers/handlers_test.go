package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/http/handlers"
	"github.com/vitalab/vitalab-backend/internal/platform/auth"
	"github.com/vitalab/vitalab-backend/internal/service"
	"github.com/vitalab/vitalab-backend/pkg/config"
)

// ---------- Mocks ----------

type mockAuthService struct {
	issueMsg  string
	issueErr  error
	lastPhone string

	verifyResult *service.LoginResult
	verifyErr    error
	lastCode     string

	pwResult *service.LoginResult
	pwErr    error
}

func (m *mockAuthService) IssueCode(_ context.Context, phone string) (string, error) {
	m.lastPhone = phone
	if m.issueErr != nil {
		return "", m.issueErr
	}
	return m.issueMsg, nil
}

func (m *mockAuthService) VerifyCode(_ context.Context, phone, code string) (*service.LoginResult, error) {
	m.lastPhone = phone
	m.lastCode = code
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyResult, nil
}

func (m *mockAuthService) PasswordLogin(_ context.Context, phone, password string) (*service.LoginResult, error) {
	if m.pwErr != nil {
		return nil, m.pwErr
	}
	return m.pwResult, nil
}

type mockUserService struct {
	users      map[int64]*domain.User
	avatarPath string
}

func newMockUserService() *mockUserService {
	return &mockUserService{users: make(map[int64]*domain.User)}
}

func (m *mockUserService) Create(_ context.Context, req *domain.CreateUserRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}
	u := &domain.User{
		ID:          int64(len(m.users) + 1),
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Nickname:    req.Nickname,
		Status:      req.Status,
		Role:        req.Role,
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserService) Get(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "用户不存在")
	}
	return u, nil
}

func (m *mockUserService) List(_ context.Context, _ string, _, _ int) ([]domain.User, int64, error) {
	var out []domain.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (m *mockUserService) Update(_ context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "用户不存在")
	}
	if req.Nickname != nil {
		u.Nickname = *req.Nickname
	}
	return u, nil
}

func (m *mockUserService) UpdateProfile(_ context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}
	u, ok := m.users[id]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "用户不存在")
	}
	if req.Nickname != nil {
		u.Nickname = *req.Nickname
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	return u, nil
}

func (m *mockUserService) Delete(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return domain.E(domain.ErrNotFound, "用户不存在")
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserService) UploadAvatar(_ context.Context, id int64, filename string, _ io.Reader) (string, error) {
	m.avatarPath = "avatars/" + filename
	return m.avatarPath, nil
}

type mockReportService struct {
	reports map[int64]*domain.HealthReport
}

func newMockReportService() *mockReportService {
	return &mockReportService{reports: make(map[int64]*domain.HealthReport)}
}

func (m *mockReportService) ListForUser(_ context.Context, userID int64) ([]domain.HealthReport, error) {
	var out []domain.HealthReport
	for _, r := range m.reports {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReportService) Get(_ context.Context, id, callerID int64, callerRole string) (*domain.HealthReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "报告不存在")
	}
	if r.UserID != callerID && callerRole != domain.RoleAdmin {
		return nil, domain.E(domain.ErrForbidden, "无权查看该报告")
	}
	return r, nil
}

func (m *mockReportService) Upload(_ context.Context, req *domain.UploadReportRequest, filename string, _ io.Reader) (*domain.HealthReport, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}
	r := &domain.HealthReport{
		ID:         int64(len(m.reports) + 1),
		UserID:     req.UserID,
		ReportType: req.ReportType,
		ReportPath: "reports/" + filename,
	}
	m.reports[r.ID] = r
	return r, nil
}

func (m *mockReportService) Delete(_ context.Context, id, callerID int64, callerRole string) error {
	r, ok := m.reports[id]
	if !ok {
		return domain.E(domain.ErrNotFound, "报告不存在")
	}
	if r.UserID != callerID && callerRole != domain.RoleAdmin {
		return domain.E(domain.ErrForbidden, "无权删除该报告")
	}
	delete(m.reports, id)
	return nil
}

// ---------- Test Setup ----------

const jwtSecret = "test-secret"

func setupTestServer() (*httptest.Server, *mockAuthService, *mockUserService, *mockReportService) {
	authSvc := &mockAuthService{issueMsg: "验证码已发送"}
	userSvc := newMockUserService()
	reportSvc := newMockReportService()

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: jwtSecret, AccessTokenTTL: time.Hour},
	}

	h := handlers.New(authSvc, userSvc, reportSvc, cfg)
	return httptest.NewServer(h.Routes()), authSvc, userSvc, reportSvc
}

func bearerToken(t *testing.T, sub int64, role string) string {
	t.Helper()
	token, err := auth.NewAccessToken(sub, "13812345678", role, jwtSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, method, url, authz string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

// ---------- Tests ----------

func TestSendCode_Success(t *testing.T) {
	server, authSvc, _, _ := setupTestServer()
	defer server.Close()

	resp := doJSON(t, http.MethodPost, server.URL+"/login/send_code", "", map[string]string{
		"phone_number": "13812345678",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["success"] != true || body["message"] != "验证码已发送" {
		t.Fatalf("unexpected body: %v", body)
	}
	if authSvc.lastPhone != "13812345678" {
		t.Fatalf("service got phone %q", authSvc.lastPhone)
	}
}

func TestSendCode_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid phone", domain.E(domain.ErrInvalidParams, "手机号格式不正确"), http.StatusBadRequest, "invalid_params"},
		{"cooldown", domain.E(domain.ErrRateLimited, "请60秒后再试"), http.StatusTooManyRequests, "rate_limit"},
		{"hourly cap", domain.E(domain.ErrRateLimited, "发送次数过多，请稍后再试"), http.StatusTooManyRequests, "rate_limit"},
		{"gateway down", domain.E(domain.ErrGatewayFailure, "短信发送失败"), http.StatusBadGateway, "sms_send_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, authSvc, _, _ := setupTestServer()
			defer server.Close()
			authSvc.issueErr = tt.err

			resp := doJSON(t, http.MethodPost, server.URL+"/login/send_code", "", map[string]string{
				"phone_number": "13812345678",
			})
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			body := decodeBody(t, resp)
			if body["success"] != false {
				t.Fatalf("expected success=false, got %v", body)
			}
			if errorCode(body) != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, errorCode(body))
			}
		})
	}
}

func TestSendCode_MalformedJSON(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/login/send_code", bytes.NewBufferString("{not json"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestVerifyCode_Success(t *testing.T) {
	server, authSvc, _, _ := setupTestServer()
	defer server.Close()

	authSvc.verifyResult = &service.LoginResult{
		User: &domain.UserInfo{
			ID:          1,
			PhoneNumber: "13812345678",
			Nickname:    "用户5678",
			Status:      domain.StatusActive,
			Role:        domain.RoleUser,
		},
		AccessToken: "jwt-token",
		ExpiresIn:   3600,
	}

	resp := doJSON(t, http.MethodPost, server.URL+"/login/verify_code", "", map[string]string{
		"phone_number": "13812345678",
		"code":         "123456",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["message"] != "登录成功" || body["access_token"] != "jwt-token" {
		t.Fatalf("unexpected body: %v", body)
	}
	user, _ := body["user"].(map[string]interface{})
	if user["nickname"] != "用户5678" {
		t.Fatalf("unexpected user: %v", user)
	}
	if authSvc.lastCode != "123456" {
		t.Fatalf("service got code %q", authSvc.lastCode)
	}
}

func TestVerifyCode_ExpiredAndMismatch(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"expired", domain.E(domain.ErrCodeExpired, "验证码已过期或不存在"), "code_expired"},
		{"mismatch", domain.E(domain.ErrCodeInvalid, "验证码错误"), "code_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, authSvc, _, _ := setupTestServer()
			defer server.Close()
			authSvc.verifyErr = tt.err

			resp := doJSON(t, http.MethodPost, server.URL+"/login/verify_code", "", map[string]string{
				"phone_number": "13812345678",
				"code":         "123456",
			})
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if body := decodeBody(t, resp); errorCode(body) != tt.wantCode {
				t.Fatalf("expected %s, got %s", tt.wantCode, errorCode(body))
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	server, authSvc, _, _ := setupTestServer()
	defer server.Close()

	authSvc.pwErr = domain.E(domain.ErrUnauthorized, "手机号或密码错误")
	resp := doJSON(t, http.MethodPost, server.URL+"/login/authenticate", "", map[string]string{
		"phone_number": "13812345678",
		"password":     "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	authSvc.pwErr = nil
	authSvc.pwResult = &service.LoginResult{
		User:        &domain.UserInfo{ID: 1, PhoneNumber: "13812345678"},
		AccessToken: "jwt-token",
		ExpiresIn:   3600,
	}
	resp = doJSON(t, http.MethodPost, server.URL+"/login/authenticate", "", map[string]string{
		"phone_number": "13812345678",
		"password":     "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["access_token"] != "jwt-token" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestLogout(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()

	resp := doJSON(t, http.MethodDelete, server.URL+"/logout", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["message"] != "已退出登录" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReports_RequireAuth(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()

	resp := doJSON(t, http.MethodGet, server.URL+"/health_reports", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/health_reports", "Bearer garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReports_ListOwnOnly(t *testing.T) {
	server, _, _, reportSvc := setupTestServer()
	defer server.Close()

	reportSvc.reports[1] = &domain.HealthReport{ID: 1, UserID: 7, ReportType: domain.ReportTypeGene}
	reportSvc.reports[2] = &domain.HealthReport{ID: 2, UserID: 8, ReportType: domain.ReportTypeGene}

	resp := doJSON(t, http.MethodGet, server.URL+"/health_reports", bearerToken(t, 7, domain.RoleUser), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	reports, _ := body["reports"].([]interface{})
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
}

func TestReports_OwnershipEnforced(t *testing.T) {
	server, _, _, reportSvc := setupTestServer()
	defer server.Close()

	reportSvc.reports[1] = &domain.HealthReport{ID: 1, UserID: 7, ReportType: domain.ReportTypeGene}

	// Another user is rejected.
	resp := doJSON(t, http.MethodGet, server.URL+"/health_reports/1", bearerToken(t, 8, domain.RoleUser), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admins can read any report.
	resp = doJSON(t, http.MethodGet, server.URL+"/health_reports/1", bearerToken(t, 9, domain.RoleAdmin), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReports_Upload(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("report_type", domain.ReportTypeGene)
	part, _ := form.CreateFormFile("file", "report.pdf")
	part.Write([]byte("%PDF-1.4 test"))
	form.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/health_reports/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", bearerToken(t, 7, domain.RoleUser))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["message"] != "报告上传成功" {
		t.Fatalf("unexpected body: %v", body)
	}
	report, _ := body["report"].(map[string]interface{})
	if report["user_id"] != float64(7) || report["report_type"] != domain.ReportTypeGene {
		t.Fatalf("unexpected report: %v", report)
	}
}

func TestReports_Delete(t *testing.T) {
	server, _, _, reportSvc := setupTestServer()
	defer server.Close()

	reportSvc.reports[1] = &domain.HealthReport{ID: 1, UserID: 7, ReportType: domain.ReportTypeGene}

	resp := doJSON(t, http.MethodDelete, server.URL+"/health_reports/1", bearerToken(t, 8, domain.RoleUser), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, server.URL+"/health_reports/1", bearerToken(t, 7, domain.RoleUser), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["message"] != "健康报告删除成功" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUpdateProfile(t *testing.T) {
	server, _, userSvc, _ := setupTestServer()
	defer server.Close()

	userSvc.users[7] = &domain.User{ID: 7, PhoneNumber: "13812345678", Nickname: "用户5678"}

	resp := doJSON(t, http.MethodPost, server.URL+"/health_reports/update_profile", bearerToken(t, 7, domain.RoleUser), map[string]string{
		"nickname": "自选昵称",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["message"] != "个人信息更新成功" {
		t.Fatalf("unexpected body: %v", body)
	}
	user, _ := body["user"].(map[string]interface{})
	if user["nickname"] != "自选昵称" {
		t.Fatalf("unexpected user: %v", user)
	}
}

func TestUsers_AdminOnly(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()

	resp := doJSON(t, http.MethodGet, server.URL+"/users/", bearerToken(t, 7, domain.RoleUser), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); errorCode(body) != "forbidden" {
		t.Fatalf("expected forbidden, got %s", errorCode(body))
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/users/", bearerToken(t, 1, domain.RoleAdmin), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUsers_CRUD(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()
	admin := bearerToken(t, 1, domain.RoleAdmin)

	// Create
	resp := doJSON(t, http.MethodPost, server.URL+"/users/", admin, map[string]string{
		"phone_number": "13812345678",
		"email":        "a@example.com",
		"nickname":     "小明",
		"password":     "secret123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	user, _ := body["user"].(map[string]interface{})
	if user["nickname"] != "小明" {
		t.Fatalf("unexpected user: %v", user)
	}

	// Get
	resp = doJSON(t, http.MethodGet, server.URL+"/users/1", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Update
	resp = doJSON(t, http.MethodPatch, server.URL+"/users/1", admin, map[string]string{
		"nickname": "小红",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	user, _ = body["user"].(map[string]interface{})
	if user["nickname"] != "小红" {
		t.Fatalf("update did not apply: %v", user)
	}

	// Delete, then the user is gone.
	resp = doJSON(t, http.MethodDelete, server.URL+"/users/1", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/users/1", admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUsers_BadID(t *testing.T) {
	server, _, _, _ := setupTestServer()
	defer server.Close()

	resp := doJSON(t, http.MethodGet, server.URL+"/users/abc", bearerToken(t, 1, domain.RoleAdmin), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
