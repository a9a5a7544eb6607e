package mapper

import (
	"graphrag-gateway/internal/dto"
	"graphrag-gateway/internal/entity"
	"graphrag-gateway/internal/model"
)

type UserMapper struct{}

func NewUserMapper() *UserMapper {
	return &UserMapper{}
}

func (m *UserMapper) ToEntity(u *model.User) *entity.User {
	if u == nil {
		return nil
	}
	return &entity.User{
		Id:           u.Id,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Role:         entity.UserRole(u.Role),
		Department:   u.Department,
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (m *UserMapper) ToModel(u *entity.User) *model.User {
	if u == nil {
		return nil
	}
	return &model.User{
		Id:           u.Id,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Role:         string(u.Role),
		Department:   u.Department,
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// ToResponse never exposes the password hash or email.
func (m *UserMapper) ToResponse(u *entity.User) dto.UserResponse {
	return dto.UserResponse{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		Department:  u.Department,
	}
}
