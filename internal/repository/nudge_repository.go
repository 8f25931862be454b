package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funnel-bot/internal/model"
)

// NudgeRepository persists the next scheduled follow-up per chat.
type NudgeRepository struct {
	db *gorm.DB
}

func NewNudgeRepository(db *gorm.DB) *NudgeRepository {
	return &NudgeRepository{db: db}
}

// Arm records the next follow-up for a chat, replacing any earlier one.
func (r *NudgeRepository) Arm(ctx context.Context, chatID int64, stage model.Stage, fireAt time.Time) error {
	nudge := model.Nudge{ChatID: chatID, Stage: stage, FireAt: fireAt}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stage":   stage,
			"fire_at": fireAt,
		}),
	}).Create(&nudge).Error
	if err != nil {
		return fmt.Errorf("arm nudge for %d: %w", chatID, err)
	}
	return nil
}

// Clear removes the pending follow-up for a chat, if any.
func (r *NudgeRepository) Clear(ctx context.Context, chatID int64) error {
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Delete(&model.Nudge{}).Error; err != nil {
		return fmt.Errorf("clear nudge for %d: %w", chatID, err)
	}
	return nil
}

// ListPending returns every persisted follow-up, soonest first. Used on
// startup to re-arm timers lost with the previous process.
func (r *NudgeRepository) ListPending(ctx context.Context) ([]model.Nudge, error) {
	var nudges []model.Nudge
	if err := r.db.WithContext(ctx).Order("fire_at ASC").Find(&nudges).Error; err != nil {
		return nil, err
	}
	return nudges, nil
}
