package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type User struct {
	ID             int64      `json:"id"`
	PhoneNumber    string     `json:"phone_number"`
	Email          string     `json:"email"`
	Nickname       string     `json:"nickname"`
	PasswordHash   string     `json:"-"`
	MembershipType string     `json:"membership_type"`
	AvatarPath     string     `json:"avatar_path,omitempty"`
	Status         string     `json:"status"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// UserInfo is the public projection returned by login and verification.
type UserInfo struct {
	ID             int64  `json:"id"`
	PhoneNumber    string `json:"phone_number"`
	Nickname       string `json:"nickname"`
	MembershipType string `json:"membership_type"`
	Status         string `json:"status"`
	Role           string `json:"role"`
}

func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:             u.ID,
		PhoneNumber:    u.PhoneNumber,
		Nickname:       u.Nickname,
		MembershipType: u.MembershipType,
		Status:         u.Status,
		Role:           u.Role,
	}
}

// Valid user roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Valid account statuses
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Membership tiers
const (
	MembershipPerVisit = "次卡会员"
	MembershipMonthly  = "月卡会员"
	MembershipYearly   = "年卡会员"
	MembershipOther    = "其他会员类别"
)

var validRoles = map[string]bool{
	RoleUser:  true,
	RoleAdmin: true,
}

var validStatuses = map[string]bool{
	StatusActive:    true,
	StatusInactive:  true,
	StatusSuspended: true,
}

var validMemberships = map[string]bool{
	MembershipPerVisit: true,
	MembershipMonthly:  true,
	MembershipYearly:   true,
	MembershipOther:    true,
}

func IsValidRole(role string) bool             { return validRoles[role] }
func IsValidStatus(status string) bool         { return validStatuses[status] }
func IsValidMembership(membership string) bool { return validMemberships[membership] }

// Chinese mainland mobile numbers only.
var phoneRegex = regexp.MustCompile(`^1[3-9]\d{9}$`)

var codeRegex = regexp.MustCompile(`^\d{6}$`)

func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

func IsValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

// DerivedNickname builds the first-login nickname from the phone's last
// four digits. The phone must already be format-validated.
func DerivedNickname(phone string) string {
	return "用户" + phone[len(phone)-4:]
}

// PlaceholderEmail fills the NOT NULL unique email column for users created
// through phone verification; they can change it later.
func PlaceholderEmail(phone string) string {
	return phone + "@temp.com"
}

type CreateUserRequest struct {
	PhoneNumber    string `json:"phone_number"`
	Email          string `json:"email"`
	Nickname       string `json:"nickname"`
	Password       string `json:"password"`
	MembershipType string `json:"membership_type,omitempty"`
	Status         string `json:"status,omitempty"`
	Role           string `json:"role,omitempty"`
}

func (r *CreateUserRequest) Normalize() {
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Nickname = strings.TrimSpace(r.Nickname)
	if r.MembershipType == "" {
		r.MembershipType = MembershipPerVisit
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.Role == "" {
		r.Role = RoleUser
	}
}

func (r *CreateUserRequest) Validate() error {
	if r.PhoneNumber == "" {
		return fmt.Errorf("phone number is required")
	}
	if !IsValidPhone(r.PhoneNumber) {
		return fmt.Errorf("invalid phone number format")
	}
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Nickname == "" {
		return fmt.Errorf("nickname is required")
	}
	if len(r.Password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if !validMemberships[r.MembershipType] {
		return fmt.Errorf("invalid membership type")
	}
	if !validStatuses[r.Status] {
		return fmt.Errorf("invalid status")
	}
	if !validRoles[r.Role] {
		return fmt.Errorf("invalid role")
	}
	return nil
}

type UpdateUserRequest struct {
	Email          *string `json:"email,omitempty"`
	Nickname       *string `json:"nickname,omitempty"`
	MembershipType *string `json:"membership_type,omitempty"`
	Status         *string `json:"status,omitempty"`
	Role           *string `json:"role,omitempty"`
}

func (r *UpdateUserRequest) Validate() error {
	if r.Email != nil && !isValidEmail(*r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Nickname != nil && strings.TrimSpace(*r.Nickname) == "" {
		return fmt.Errorf("nickname cannot be empty")
	}
	if r.MembershipType != nil && !validMemberships[*r.MembershipType] {
		return fmt.Errorf("invalid membership type")
	}
	if r.Status != nil && !validStatuses[*r.Status] {
		return fmt.Errorf("invalid status")
	}
	if r.Role != nil && !validRoles[*r.Role] {
		return fmt.Errorf("invalid role")
	}
	return nil
}

// UpdateProfileRequest is the self-service subset of profile fields; role,
// status and membership stay admin-only.
type UpdateProfileRequest struct {
	Nickname *string `json:"nickname,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (r *UpdateProfileRequest) Validate() error {
	if r.Nickname != nil && strings.TrimSpace(*r.Nickname) == "" {
		return fmt.Errorf("nickname cannot be empty")
	}
	if r.Email != nil && !isValidEmail(*r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Password != nil && len(*r.Password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}
