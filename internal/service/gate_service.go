package service

import (
	"context"
	"fmt"
	"log"

	"funnel-bot/internal/repository"
)

// satisfiedStatuses are the membership statuses that count as joined.
var satisfiedStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// GateService verifies membership in the required channels before the reward
// menu is unlocked.
type GateService struct {
	channelIDs []string
	users      *repository.UserRepository
	membership MembershipChecker
}

func NewGateService(channelIDs []string, users *repository.UserRepository, membership MembershipChecker) *GateService {
	return &GateService{channelIDs: channelIDs, users: users, membership: membership}
}

// Verify checks every required channel, failing fast on the first miss or
// lookup error. An empty required list passes. On success the record is marked
// unlocked; on failure it is left untouched.
func (s *GateService) Verify(ctx context.Context, chatID int64) (bool, error) {
	for _, channelID := range s.channelIDs {
		status, err := s.membership.ChatMemberStatus(channelID, chatID)
		if err != nil {
			log.Printf("membership lookup %s for %d: %v", channelID, chatID, err)
			return false, nil
		}
		if !satisfiedStatuses[status] {
			return false, nil
		}
	}

	if err := s.users.UpdateFields(ctx, chatID, map[string]interface{}{
		"channels_joined": true,
		"vip_unlocked":    true,
	}); err != nil {
		return false, fmt.Errorf("unlock vip for %d: %w", chatID, err)
	}
	log.Printf("[info] channels verified for %d", chatID)
	return true, nil
}
