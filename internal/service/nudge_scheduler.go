package service

import (
	"sync"
	"time"
)

// NudgeScheduler owns the pending follow-up timer of each chat. Arming a chat
// replaces its previous timer; the stop on replace is best-effort because a
// callback already in flight keeps running and relies on its own guard check.
type NudgeScheduler struct {
	clock  Clock
	mu     sync.Mutex
	timers map[int64]TimerHandle
}

func NewNudgeScheduler(clock Clock) *NudgeScheduler {
	return &NudgeScheduler{
		clock:  clock,
		timers: make(map[int64]TimerHandle),
	}
}

// Schedule arms fn to run after d for the given chat.
func (s *NudgeScheduler) Schedule(chatID int64, d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[chatID]; ok {
		old.Stop()
	}
	var handle TimerHandle
	handle = s.clock.AfterFunc(d, func() {
		// Drop the map entry only if it is still ours; a replaced timer
		// must not forget its successor.
		s.mu.Lock()
		if cur, ok := s.timers[chatID]; ok && cur == handle {
			delete(s.timers, chatID)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[chatID] = handle
}

// Drop stops the pending timer for a chat, if any.
func (s *NudgeScheduler) Drop(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[chatID]; ok {
		old.Stop()
		delete(s.timers, chatID)
	}
}

// Pending reports whether a timer is currently armed for the chat.
func (s *NudgeScheduler) Pending(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[chatID]
	return ok
}
