// Package model defines the persisted data models.
package model

import (
	"time"
)

// Fingerprint is the root fingerprint of one data descriptor.
// FingerprintID = md5(FingerprintSummary); one row per (DDNamespace, DDName).
type Fingerprint struct {
	FID                  string    `json:"fid" gorm:"column:fid;primaryKey;type:char(36)"`
	FingerprintID        string    `json:"fingerprint_id" gorm:"column:fingerprint_id;type:char(32);index"`
	FingerprintSummary   string    `json:"fingerprint_summary" gorm:"column:fingerprint_summary;type:text"`
	AgentInfoName        string    `json:"agent_info_name" gorm:"column:agent_info_name;type:varchar(255)"`
	AgentInfoDescription string    `json:"agent_info_description" gorm:"column:agent_info_description;type:text"`
	DDNamespace          string    `json:"dd_namespace" gorm:"column:dd_namespace;type:varchar(255);uniqueIndex:idx_dd_ns_name,priority:1"`
	DDName               string    `json:"dd_name" gorm:"column:dd_name;type:varchar(255);uniqueIndex:idx_dd_ns_name,priority:2"`
	CreatedAt            time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for Fingerprint.
func (Fingerprint) TableName() string {
	return "fingerprints"
}
