package model

import (
	"time"

	"midiplayer/core/event"
)

// PlaybackEvent 播放事件日志
type PlaybackEvent struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerID  string    `json:"playerId" gorm:"size:36;index;not null"`
	Event     string    `json:"event" gorm:"size:64;index;not null"`
	Message   string    `json:"message,omitempty" gorm:"size:512"`
	Error     string    `json:"error,omitempty" gorm:"size:1024"`
	Time      *float64  `json:"time,omitempty"` // 播放进度，秒
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (PlaybackEvent) TableName() string {
	return "playback_events"
}

// NewPlaybackEvent 由播放器事件生成日志记录
func NewPlaybackEvent(e event.Event, at time.Time) *PlaybackEvent {
	rec := &PlaybackEvent{
		PlayerID:  e.PlayerID,
		Event:     e.Name(),
		Message:   e.Message,
		Time:      e.Time,
		CreatedAt: at,
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}
