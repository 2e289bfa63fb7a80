package persona

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Persona is one immutable version of a user's summary. Versions are append-only.
type Persona struct {
	ID                     uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                 uint64         `gorm:"not null;index:uniq_persona_user_version,unique,priority:1" json:"user_id"`
	Version                int            `gorm:"not null;index:uniq_persona_user_version,unique,priority:2" json:"version"`
	PersonaText            string         `gorm:"type:text;not null" json:"persona"`
	LastProcessedMessageID uint64         `gorm:"not null" json:"last_processed_message_id"`
	MessagesProcessed      int            `gorm:"not null" json:"messages_processed"`
	Tags                   datatypes.JSON `json:"tags"`
	Model                  string         `gorm:"type:varchar(128)" json:"model,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
}

func (Persona) TableName() string { return "user_personas" }

func (p *Persona) TagList() []string {
	if len(p.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(p.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// BuildJob tracks one on-demand persona build request.
type BuildJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID uint64    `gorm:"index;not null" json:"user_id"`
	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	Outcome        string `gorm:"type:varchar(16)" json:"outcome,omitempty"`
	PersonaVersion *int   `json:"persona_version,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BuildJob) TableName() string { return "persona_build_jobs" }

func tagsJSON(tags []string) datatypes.JSON {
	b, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
