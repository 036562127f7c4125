package session

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/kart-io/dataagent/internal/model"
	"github.com/kart-io/dataagent/pkg/utils/id"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// HistoryStore 是直接落库的 History 实现，供自持历史表的部署使用。
type HistoryStore struct {
	db *gorm.DB
}

var _ History = (*HistoryStore)(nil)

// NewHistoryStore 创建历史记录存储。
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// AutoMigrate 创建或更新 history 表。
func (s *HistoryStore) AutoMigrate() error {
	return s.db.AutoMigrate(&model.History{})
}

// Append 写入一条记录。
func (s *HistoryStore) Append(ctx context.Context, scope Scope, messages []Message) (string, error) {
	conversation, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}
	row := &model.History{
		HID:          id.NewUUID(),
		UserID:       scope.UserID,
		AgentID:      scope.AgentID,
		RunID:        scope.RunID,
		Conversation: string(conversation),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", err
	}
	return row.HID, nil
}

// Lookup 返回 scope 下最近的 limit 条记录，按创建时间升序。limit <= 0 表示不限。
func (s *HistoryStore) Lookup(ctx context.Context, scope Scope, limit int) ([]HistoryRecord, error) {
	q := s.db.WithContext(ctx).Model(&model.History{})
	if scope.UserID != "" {
		q = q.Where("user_id = ?", scope.UserID)
	}
	if scope.AgentID != "" {
		q = q.Where("agent_id = ?", scope.AgentID)
	}
	if scope.RunID != "" {
		q = q.Where("run_id = ?", scope.RunID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.History
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	slices.Reverse(rows)

	records := make([]HistoryRecord, 0, len(rows))
	for _, r := range rows {
		var messages []Message
		if err := json.Unmarshal([]byte(r.Conversation), &messages); err != nil {
			return nil, fmt.Errorf("decode conversation %s: %w", r.HID, err)
		}
		records = append(records, HistoryRecord{
			HID:       r.HID,
			UserID:    r.UserID,
			AgentID:   r.AgentID,
			RunID:     r.RunID,
			Messages:  messages,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return records, nil
}
