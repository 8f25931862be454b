package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funnel-bot/internal/model"
)

// UserRepository handles funnel records.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ResetOnStart creates or resets a record for a fresh /start. The write is a
// single conditional upsert so two racing start events for the same chat can
// never produce a duplicate-key failure: the insert carries the defaults,
// the conflict branch resets the funnel fields in place.
func (r *UserRepository) ResetOnStart(ctx context.Context, chatID int64, firstName, username string) (*model.User, error) {
	now := time.Now()
	user := model.User{
		ChatID:          chatID,
		FirstName:       firstName,
		Username:        username,
		CurrentStage:    model.StageInitial,
		ResponseType:    model.ResponseNone,
		LastMessageTime: now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"first_name":        firstName,
			"username":          username,
			"current_stage":     model.StageInitial,
			"has_responded":     false,
			"response_type":     model.ResponseNone,
			"last_message_time": now,
		}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("reset user: %w", err)
	}
	return r.FindByChatID(ctx, chatID)
}

// Touch upserts profile metadata and the last-message timestamp without
// disturbing the funnel state.
func (r *UserRepository) Touch(ctx context.Context, chatID int64, firstName, username string) (*model.User, error) {
	now := time.Now()
	user := model.User{
		ChatID:          chatID,
		FirstName:       firstName,
		Username:        username,
		CurrentStage:    model.StageInitial,
		ResponseType:    model.ResponseNone,
		LastMessageTime: now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"first_name":        firstName,
			"username":          username,
			"last_message_time": now,
		}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	return r.FindByChatID(ctx, chatID)
}

func (r *UserRepository) FindByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateFields applies a partial update to a single record by chat id.
func (r *UserRepository) UpdateFields(ctx context.Context, chatID int64, fields map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("chat_id = ?", chatID).
		Updates(fields).Error; err != nil {
		return fmt.Errorf("update user %d: %w", chatID, err)
	}
	return nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, err
}

func (r *UserRepository) CountByStage(ctx context.Context, stage model.Stage) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("current_stage = ?", stage).Count(&n).Error
	return n, err
}

func (r *UserRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("current_stage <> ?", model.StageCompleted).Count(&n).Error
	return n, err
}

func (r *UserRepository) CountByResponseType(ctx context.Context, rt model.ResponseType) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("response_type = ?", rt).Count(&n).Error
	return n, err
}

func (r *UserRepository) CountLinksSent(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("link_sent = ?", true).Count(&n).Error
	return n, err
}

// StageBreakdown groups records by funnel stage.
func (r *UserRepository) StageBreakdown(ctx context.Context) (map[model.Stage]int64, error) {
	type row struct {
		CurrentStage model.Stage
		Count        int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&model.User{}).
		Select("current_stage, COUNT(*) AS count").
		Group("current_stage").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("stage breakdown: %w", err)
	}
	out := make(map[model.Stage]int64, len(rows))
	for _, r := range rows {
		out[r.CurrentStage] = r.Count
	}
	return out, nil
}
