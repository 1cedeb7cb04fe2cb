package repository

import (
	"context"

	"gorm.io/gorm"

	"midiplayer/model"
)

// EventRepository 播放事件数据访问接口
type EventRepository interface {
	CreateBatch(ctx context.Context, events []*model.PlaybackEvent) error
	ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]*model.PlaybackEvent, error)
	DeleteByPlayer(ctx context.Context, playerID string) (int64, error)
}

// gormEventRepository GORM 实现
type gormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository 创建 GORM 事件仓库
func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

// CreateBatch 批量写入事件
func (r *gormEventRepository) CreateBatch(ctx context.Context, events []*model.PlaybackEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// ListByPlayer 按时间倒序获取某个播放器的事件
func (r *gormEventRepository) ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]*model.PlaybackEvent, error) {
	var events []*model.PlaybackEvent
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, err
}

// DeleteByPlayer 删除某个播放器的全部事件
func (r *gormEventRepository) DeleteByPlayer(ctx context.Context, playerID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Delete(&model.PlaybackEvent{})
	return res.RowsAffected, res.Error
}
