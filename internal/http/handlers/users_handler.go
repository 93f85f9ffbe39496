package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/http/response"
)

// ListUsers supports keyword search over phone, nickname and email.
// GET /users?keyword=&limit=&offset=
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	keyword := r.URL.Query().Get("keyword")

	users, total, err := h.users.List(r.Context(), keyword, limit, offset)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"users":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateUser creates an account with an explicit profile.
// POST /users
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	user, err := h.users.Create(r.Context(), &req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusCreated, map[string]interface{}{
		"user": user,
	})
}

// GetUser returns one active user.
// GET /users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "用户ID格式错误"))
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"user": user,
	})
}

// UpdateUser applies a partial profile update.
// PATCH /users/{id}
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "用户ID格式错误"))
		return
	}

	var req domain.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "请求格式错误"))
		return
	}

	user, err := h.users.Update(r.Context(), id, &req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"user": user,
	})
}

// DeleteUser soft-deletes; the phone frees up for re-registration because
// lookups exclude deleted rows.
// DELETE /users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.Error(w, domain.E(domain.ErrInvalidParams, "用户ID格式错误"))
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]interface{}{
		"message": "用户已删除",
	})
}
