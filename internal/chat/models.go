package chat

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_id"`
	Username     string    `gorm:"type:varchar(128)" json:"username"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (User) TableName() string { return "users" }

type Agent struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	SystemPrompt  string    `gorm:"type:text;not null" json:"system_prompt"`
	EnablePersona bool      `gorm:"not null;default:false" json:"enable_persona"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Agent) TableName() string { return "agents" }

// Message is one conversational turn. ID order is creation order and is the
// persona watermark unit.
type Message struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement;index:idx_chat_msg_user_id,priority:2" json:"id"`
	UserID        uint64    `gorm:"not null;index:idx_chat_msg_user_id,priority:1" json:"user_id"`
	AgentID       uint64    `gorm:"not null;default:0;index" json:"agent_id"`
	UserText      string    `gorm:"type:text;not null" json:"user_text"`
	AssistantText string    `gorm:"type:text;not null" json:"assistant_text"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
