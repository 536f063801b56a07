package model

import "time"

type Product struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"not null;index" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	//価格（最小通貨単位）
	Price int64 `gorm:"not null" json:"price"`

	CategoryID *int64    `gorm:"index" json:"category_id"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
