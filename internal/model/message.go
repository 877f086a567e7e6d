package model

type Message struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	SessionID  string `gorm:"size:64;not null;index" json:"session_id"`
	UserID     uint   `gorm:"not null;index" json:"user_id"`
	Role       string `gorm:"size:16;not null" json:"role"`
	Content    string `gorm:"type:text;not null" json:"content"`
	Timestamp  int64  `gorm:"not null;index" json:"timestamp"`
	IsFavorite bool   `gorm:"not null;default:false" json:"is_favorite"`
}

func (Message) TableName() string {
	return "chat_messages"
}
