package model

import (
	"time"
)

// History is one appended conversation segment of a run.
// Conversation holds [{role, content}] encoded as JSON.
type History struct {
	HID          string    `json:"hid" gorm:"column:hid;primaryKey;type:char(36)"`
	UserID       string    `json:"user_id" gorm:"column:user_id;type:varchar(128);index:idx_history_scope"`
	AgentID      string    `json:"agent_id" gorm:"column:agent_id;type:varchar(128);index:idx_history_scope"`
	RunID        string    `json:"run_id" gorm:"column:run_id;type:varchar(128);index:idx_history_scope"`
	Conversation string    `json:"conversation" gorm:"column:conversation;type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for History.
func (History) TableName() string {
	return "history"
}
