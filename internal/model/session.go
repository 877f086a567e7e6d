package model

// Session is the remote chat_sessions row. Timestamps are epoch milliseconds written by the
// client, so gorm's automatic time tracking is disabled.
type Session struct {
	ID                string `gorm:"primaryKey;size:64" json:"id"`
	UserID            uint   `gorm:"not null;index" json:"user_id"`
	Title             string `gorm:"size:256;not null" json:"title"`
	ConversationID    string `gorm:"size:128" json:"conversation_id"`
	IsPinned          bool   `gorm:"not null;default:false" json:"is_pinned"`
	IsManuallyRenamed bool   `gorm:"not null;default:false" json:"is_manually_renamed"`
	CreatedAt         int64  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt         int64  `gorm:"not null;index;autoUpdateTime:false" json:"updated_at"`
}

func (Session) TableName() string {
	return "chat_sessions"
}
