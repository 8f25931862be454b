package model

import "time"

// Nudge is the next scheduled follow-up for a chat, persisted so a restart can
// re-arm pending timers instead of dropping them. At most one row per chat: the
// row is replaced when the next follow-up is armed and deleted once the funnel
// completes.
type Nudge struct {
	ID        uint  `gorm:"primaryKey"`
	ChatID    int64 `gorm:"uniqueIndex"`
	Stage     Stage
	FireAt    time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
