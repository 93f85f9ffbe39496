package service

import (
	"context"
	"io"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/platform/storage"
	"github.com/vitalab/vitalab-backend/internal/repo/postgres"
	"github.com/vitalab/vitalab-backend/pkg/logger"
)

type UserService interface {
	Create(ctx context.Context, req *domain.CreateUserRequest) (*domain.User, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, keyword string, limit, offset int) ([]domain.User, int64, error)
	Update(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error)
	// UpdateProfile is the self-service variant: nickname, email and
	// password only.
	UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
	UploadAvatar(ctx context.Context, id int64, filename string, file io.Reader) (string, error)
}

type userService struct {
	users postgres.UsersRepo
	files storage.FileStore
}

func NewUserService(users postgres.UsersRepo, files storage.FileStore) UserService {
	return &userService{users: users, files: files}
}

func (s *userService) Create(ctx context.Context, req *domain.CreateUserRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}

	existing, err := s.users.FindActiveByPhone(ctx, req.PhoneNumber)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "用户创建失败", err)
	}
	if existing != nil {
		return nil, domain.E(domain.ErrConflict, "手机号已存在")
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "用户创建失败", err)
	}

	user, err := s.users.Create(ctx, postgres.CreateUserParams{
		PhoneNumber:    req.PhoneNumber,
		Email:          req.Email,
		Nickname:       req.Nickname,
		PasswordHash:   passwordHash,
		MembershipType: req.MembershipType,
		Status:         req.Status,
		Role:           req.Role,
	})
	if err != nil {
		// Likely a unique violation on email or nickname.
		logger.ErrorContext(ctx, "User creation failed", "error", err)
		return nil, domain.Wrap(domain.ErrConflict, "用户创建失败，邮箱或昵称可能已存在", err)
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindActiveByID(ctx, id)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "查询用户失败", err)
	}
	if user == nil {
		return nil, domain.E(domain.ErrNotFound, "用户不存在")
	}
	return user, nil
}

func (s *userService) List(ctx context.Context, keyword string, limit, offset int) ([]domain.User, int64, error) {
	users, total, err := s.users.List(ctx, keyword, limit, offset)
	if err != nil {
		return nil, 0, domain.Wrap(domain.ErrServerError, "查询用户失败", err)
	}
	return users, total, nil
}

func (s *userService) Update(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}

	user, err := s.users.Update(ctx, id, req)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "更新用户失败", err)
	}
	if user == nil {
		return nil, domain.E(domain.ErrNotFound, "用户不存在")
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.E(domain.ErrInvalidParams, err.Error())
	}

	user, err := s.users.Update(ctx, id, &domain.UpdateUserRequest{
		Email:    req.Email,
		Nickname: req.Nickname,
	})
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "更新个人信息失败", err)
	}
	if user == nil {
		return nil, domain.E(domain.ErrNotFound, "用户不存在")
	}

	if req.Password != nil {
		passwordHash, err := argon2id.CreateHash(*req.Password, argon2id.DefaultParams)
		if err != nil {
			return nil, domain.Wrap(domain.ErrServerError, "更新个人信息失败", err)
		}
		if err := s.users.UpdatePassword(ctx, id, passwordHash); err != nil {
			return nil, domain.Wrap(domain.ErrServerError, "更新个人信息失败", err)
		}
		user.PasswordHash = passwordHash
	}

	return user, nil
}

func (s *userService) Delete(ctx context.Context, id int64) error {
	err := s.users.SoftDelete(ctx, id)
	if err == pgx.ErrNoRows {
		return domain.E(domain.ErrNotFound, "用户不存在")
	}
	if err != nil {
		return domain.Wrap(domain.ErrServerError, "删除用户失败", err)
	}
	return nil
}

func (s *userService) UploadAvatar(ctx context.Context, id int64, filename string, file io.Reader) (string, error) {
	path, err := s.files.Save("avatars", filename, file)
	if err != nil {
		return "", domain.Wrap(domain.ErrServerError, "头像上传失败", err)
	}

	if err := s.users.UpdateAvatar(ctx, id, path); err != nil {
		if removeErr := s.files.Remove(path); removeErr != nil {
			logger.WarnContext(ctx, "Failed to remove orphaned avatar file", "error", removeErr, "path", path)
		}
		if err == pgx.ErrNoRows {
			return "", domain.E(domain.ErrNotFound, "用户不存在")
		}
		return "", domain.Wrap(domain.ErrServerError, "头像上传失败", err)
	}

	return path, nil
}
