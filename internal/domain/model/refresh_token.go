package model

import "time"

// 長命の再発行用クレデンシャル。
// revoked=false かつ expires_at 未到来のものだけが有効。
type RefreshToken struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"not null;uniqueIndex" json:"-"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	Revoked   bool      `gorm:"not null;default:false;index" json:"revoked"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
