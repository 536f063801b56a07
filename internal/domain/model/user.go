package model

import "time"

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string `gorm:"uniqueIndex;not null" json:"phone"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	FullName     string `gorm:"index" json:"full_name"`

	//住所
	City     string `json:"city"`
	District string `json:"district"`
	Address  string `json:"address"`

	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
