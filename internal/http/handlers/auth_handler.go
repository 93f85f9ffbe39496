package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/http/response"
)

// SendCode issues a one-time login code to the given phone.
// POST /login/send_code
func (h *Handlers) SendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	message, err := h.auth.IssueCode(r.Context(), req.PhoneNumber)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message": message,
	})
}

// VerifyCode checks the submitted code and logs the user in, registering
// a new account on first login.
// POST /login/verify_code
func (h *Handlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	result, err := h.auth.VerifyCode(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message":      "登录成功",
		"user":         result.User,
		"access_token": result.AccessToken,
		"expires_in":   result.ExpiresIn,
	})
}

// Authenticate logs in an existing account by phone and password.
// POST /login/authenticate
func (h *Handlers) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	result, err := h.auth.PasswordLogin(r.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message":      "登录成功",
		"user":         result.User,
		"access_token": result.AccessToken,
		"expires_in":   result.ExpiresIn,
	})
}

// Logout is a no-op server side; tokens simply expire.
// DELETE /logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, map[string]interface{}{
		"message": "已退出登录",
	})
}
