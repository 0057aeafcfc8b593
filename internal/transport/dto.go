package transport

import (
	"time"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/models"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=3,max=32,username_format"`
	Password string `json:"password" validate:"required,min=5,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// RefreshRequest may be empty when the refresh cookie is sent instead.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password" validate:"required,min=5,max=72"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type BanRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

type RoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"`
}

// PublicUser is what any authenticated caller may see about another user.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	Banned        bool   `json:"banned"`
	CreatedAt     int64  `json:"created_at"`
}

type UserListResponse struct {
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Users []UserResponse `json:"users"`
}

type AuditResponse struct {
	Total   int64          `json:"total"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
	Records []audit.Record `json:"records"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ToPublicUser(u *models.User) PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Role: u.Role}
}

func ToUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		Banned:        u.Banned,
		CreatedAt:     u.CreatedAt,
	}
}

func ToUserList(users []models.User, total int64, page, size int) UserListResponse {
	out := UserListResponse{Total: total, Page: page, Size: size, Users: make([]UserResponse, 0, len(users))}
	for i := range users {
		out.Users = append(out.Users, ToUserResponse(&users[i]))
	}
	return out
}
