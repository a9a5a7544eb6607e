package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	Email        *string   `gorm:"type:varchar(255);uniqueIndex"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	DisplayName  *string   `gorm:"type:varchar(255)"`
	Role         string    `gorm:"type:varchar(50);not null;default:'user'"`
	Department   *string   `gorm:"type:varchar(255)"`
	IsActive     bool      `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
