package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"funnel-bot/internal/model"
	"funnel-bot/internal/repository"
)

// Stats aggregates the funnel records for the operator report.
type Stats struct {
	Total     int64
	Active    int64
	Completed int64
	Positive  int64
	Negative  int64
	LinksSent int64
	ByStage   map[model.Stage]int64
}

// ConversionRate is linksSent/total in percent; 0 when there are no users.
func (s Stats) ConversionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.LinksSent) / float64(s.Total) * 100
}

// PositiveRate is positive/total in percent; 0 when there are no users.
func (s Stats) PositiveRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Positive) / float64(s.Total) * 100
}

// BroadcastResult tallies a mass send.
type BroadcastResult struct {
	Attempted int
	Success   int
	Failed    int
}

// AdminService serves the operator-only reporting and broadcast commands.
type AdminService struct {
	users    *repository.UserRepository
	gateway  Gateway
	clock    Clock
	throttle time.Duration
}

func NewAdminService(users *repository.UserRepository, gateway Gateway, clock Clock, throttle time.Duration) *AdminService {
	return &AdminService{users: users, gateway: gateway, clock: clock, throttle: throttle}
}

// Summary reads the aggregate counters in one pass over the store.
func (s *AdminService) Summary(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		err   error
	)
	if stats.Total, err = s.users.CountTotal(ctx); err != nil {
		return stats, fmt.Errorf("count total: %w", err)
	}
	if stats.Active, err = s.users.CountActive(ctx); err != nil {
		return stats, fmt.Errorf("count active: %w", err)
	}
	if stats.Completed, err = s.users.CountByStage(ctx, model.StageCompleted); err != nil {
		return stats, fmt.Errorf("count completed: %w", err)
	}
	if stats.Positive, err = s.users.CountByResponseType(ctx, model.ResponsePositive); err != nil {
		return stats, fmt.Errorf("count positive: %w", err)
	}
	if stats.Negative, err = s.users.CountByResponseType(ctx, model.ResponseNegative); err != nil {
		return stats, fmt.Errorf("count negative: %w", err)
	}
	if stats.LinksSent, err = s.users.CountLinksSent(ctx); err != nil {
		return stats, fmt.Errorf("count links sent: %w", err)
	}
	if stats.ByStage, err = s.users.StageBreakdown(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

var stageLabels = []struct {
	stage model.Stage
	label string
}{
	{model.StageInitial, "🔵 Initial"},
	{model.StageSentTestimonials, "📹 Témoignages envoyés"},
	{model.StageSentQuestion, "❓ Question posée"},
	{model.StageAwaitingResponse, "⏳ En attente réponse"},
	{model.StageFollowup1, "⏰ Relance 5min"},
	{model.StageFollowup2, "⏰ Relance 30min"},
	{model.StageFollowup3, "⏰ Relance 12h"},
	{model.StageCompleted, "✅ Terminé"},
}

// FormatReport renders the stats for Telegram (Markdown).
func FormatReport(stats Stats) string {
	var b strings.Builder
	b.WriteString("📊 *STATISTIQUES DU BOT*\n\n")
	b.WriteString(fmt.Sprintf("👥 *Utilisateurs totaux:* %d\n", stats.Total))
	b.WriteString(fmt.Sprintf("✅ *Parcours terminés:* %d\n", stats.Completed))
	b.WriteString(fmt.Sprintf("🔄 *Parcours en cours:* %d\n\n", stats.Active))
	b.WriteString(fmt.Sprintf("💚 *Réponses positives:* %d (%.2f%%)\n", stats.Positive, stats.PositiveRate()))
	b.WriteString(fmt.Sprintf("❌ *Réponses négatives:* %d\n\n", stats.Negative))
	b.WriteString(fmt.Sprintf("🔗 *Liens envoyés:* %d\n", stats.LinksSent))
	b.WriteString(fmt.Sprintf("📈 *Taux de conversion:* %.2f%%\n\n", stats.ConversionRate()))
	b.WriteString("📍 *Répartition par étape:*\n")
	for _, entry := range stageLabels {
		if count, ok := stats.ByStage[entry.stage]; ok {
			b.WriteString(fmt.Sprintf("%s: %d\n", entry.label, count))
		}
	}
	return strings.TrimSpace(b.String())
}

// Broadcast fans a message out to every known chat sequentially, pausing
// between sends to respect transport rate limits. A failed recipient is
// counted and skipped, never aborting the rest.
func (s *AdminService) Broadcast(ctx context.Context, text string) (BroadcastResult, error) {
	var result BroadcastResult
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		result.Attempted++
		if err := s.gateway.SendText(user.ChatID, text); err != nil {
			result.Failed++
			log.Printf("broadcast to %d: %v", user.ChatID, err)
			continue
		}
		result.Success++
		s.clock.Sleep(s.throttle)
	}
	log.Printf("[info] broadcast done: %d success, %d fail", result.Success, result.Failed)
	return result, nil
}
