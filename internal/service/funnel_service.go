package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"funnel-bot/internal/config"
	"funnel-bot/internal/model"
	"funnel-bot/internal/repository"
)

// FunnelService drives a chat through the scripted funnel: intro media,
// decision prompt, escalating follow-ups, completion on the first classified
// answer. All timer callbacks re-read the record and abort once the user has
// responded; that guard is the only cancellation mechanism.
type FunnelService struct {
	cfg        *config.Config
	users      *repository.UserRepository
	nudges     *repository.NudgeRepository
	gateway    Gateway
	classifier *Classifier
	scheduler  *NudgeScheduler
	clock      Clock
}

func NewFunnelService(
	cfg *config.Config,
	users *repository.UserRepository,
	nudges *repository.NudgeRepository,
	gateway Gateway,
	classifier *Classifier,
	scheduler *NudgeScheduler,
	clock Clock,
) *FunnelService {
	return &FunnelService{
		cfg:        cfg,
		users:      users,
		nudges:     nudges,
		gateway:    gateway,
		classifier: classifier,
		scheduler:  scheduler,
		clock:      clock,
	}
}

// Start resets the funnel record for a fresh /start and plays the scripted
// intro. The intro contains long pauses, so the transport runs it off the
// update loop; a failed send of one item is logged and the sequence continues.
func (s *FunnelService) Start(ctx context.Context, chatID int64, firstName, username string) error {
	user, err := s.users.ResetOnStart(ctx, chatID, firstName, username)
	if err != nil {
		return err
	}

	// A stale timer from a previous run must not nudge a freshly reset user.
	s.scheduler.Drop(chatID)
	if err := s.nudges.Clear(ctx, chatID); err != nil {
		log.Printf("clear nudge on start %d: %v", chatID, err)
	}

	if s.cfg.StartVideo != "" {
		if err := s.gateway.SendOpeningVideo(chatID, s.cfg.StartVideo); err != nil {
			log.Printf("send start video to %d: %v", chatID, err)
		}
	} else {
		name := user.FirstName
		if name == "" {
			name = "ami"
		}
		if err := s.gateway.SendText(chatID, fmt.Sprintf("Bienvenue %s 👋", name)); err != nil {
			log.Printf("send greeting to %d: %v", chatID, err)
		}
	}

	for i, fileID := range s.cfg.TestimonialVideos {
		if i == 0 {
			s.clock.Sleep(s.cfg.IntroDelay)
		}
		if err := s.gateway.SendVideo(chatID, fileID); err != nil {
			log.Printf("send testimonial %d to %d: %v", i+1, chatID, err)
			continue
		}
		s.clock.Sleep(s.cfg.MediaGap)
	}

	if err := s.users.UpdateFields(ctx, chatID, map[string]interface{}{
		"current_stage":     model.StageSentTestimonials,
		"last_message_time": s.clock.Now(),
	}); err != nil {
		return err
	}

	s.clock.Sleep(s.cfg.QuestionDelay)
	return s.sendQuestion(ctx, chatID)
}

func (s *FunnelService) sendQuestion(ctx context.Context, chatID int64) error {
	if err := s.gateway.SendDecisionPrompt(chatID, "Du coup, voulez-vous gagner avec nous ?? 💰"); err != nil {
		return fmt.Errorf("send question to %d: %w", chatID, err)
	}
	if err := s.users.UpdateFields(ctx, chatID, map[string]interface{}{
		"current_stage":     model.StageSentQuestion,
		"last_message_time": s.clock.Now(),
	}); err != nil {
		return err
	}
	log.Printf("[info] question sent to %d", chatID)
	s.armNudge(ctx, chatID, model.StageFollowup1, s.cfg.Nudge1Delay)
	return nil
}

// armNudge persists the next follow-up, then arms the in-memory timer. The
// persisted row lets a restarted process re-arm instead of losing the nudge.
func (s *FunnelService) armNudge(ctx context.Context, chatID int64, target model.Stage, delay time.Duration) {
	fireAt := s.clock.Now().Add(delay)
	if err := s.nudges.Arm(ctx, chatID, target, fireAt); err != nil {
		log.Printf("persist nudge %s for %d: %v", target, chatID, err)
	}
	s.scheduler.Schedule(chatID, delay, func() {
		s.fireNudge(chatID, target)
	})
}

// fireNudge runs at a follow-up deadline. It re-reads the record and becomes a
// no-op when the user responded meanwhile or the record disappeared, so a late
// or duplicate firing never double-sends.
func (s *FunnelService) fireNudge(chatID int64, target model.Stage) {
	ctx := context.Background()

	user, err := s.users.FindByChatID(ctx, chatID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("nudge %s lookup %d: %v", target, chatID, err)
		}
		return
	}
	if user.HasResponded {
		if err := s.nudges.Clear(ctx, chatID); err != nil {
			log.Printf("clear nudge for %d: %v", chatID, err)
		}
		return
	}

	switch target {
	case model.StageFollowup1:
		text := fmt.Sprintf("T'es là ? 👋 Prends vite ta décision et on t'aide à gagner ! DM moi @%s 💬", s.cfg.AdminUsername)
		if err := s.gateway.SendText(chatID, text); err != nil {
			log.Printf("send followup 1 to %d: %v", chatID, err)
		}
		s.advance(ctx, chatID, model.StageFollowup1)
		s.armNudge(ctx, chatID, model.StageFollowup2, s.cfg.Nudge2Delay)

	case model.StageFollowup2:
		text := fmt.Sprintf("%s, il ne reste que 10 places, mon VIP va être complet bientôt ! T'es chaud ? 🔥 Contacte-moi en DM maintenant ! @%s 💬", user.FirstName, s.cfg.AdminUsername)
		if err := s.gateway.SendText(chatID, text); err != nil {
			log.Printf("send followup 2 to %d: %v", chatID, err)
		}
		s.advance(ctx, chatID, model.StageFollowup2)
		s.armNudge(ctx, chatID, model.StageFollowup3, s.cfg.Nudge3Delay)

	case model.StageFollowup3:
		for i, fileID := range s.cfg.FinalVideos {
			if err := s.gateway.SendVideo(chatID, fileID); err != nil {
				log.Printf("send final video %d to %d: %v", i+1, chatID, err)
				continue
			}
			s.clock.Sleep(s.cfg.MediaGap)
		}
		s.clock.Sleep(s.cfg.FinalPromptDelay)
		text := fmt.Sprintf("Salut ! On n'attend que toi %s ! 🎯 Voulais-tu que je t'envoie le lien de l'inscription ?? 🔗", user.FirstName)
		if err := s.gateway.SendText(chatID, text); err != nil {
			log.Printf("send followup 3 to %d: %v", chatID, err)
		}
		s.advance(ctx, chatID, model.StageFollowup3)
		// Terminal wait: no further timer, the row has served its purpose.
		if err := s.nudges.Clear(ctx, chatID); err != nil {
			log.Printf("clear nudge for %d: %v", chatID, err)
		}

	default:
		log.Printf("nudge with unknown target %q for %d", target, chatID)
		return
	}
	log.Printf("[info] nudge %s delivered to %d", target, chatID)
}

func (s *FunnelService) advance(ctx context.Context, chatID int64, stage model.Stage) {
	if err := s.users.UpdateFields(ctx, chatID, map[string]interface{}{
		"current_stage": stage,
	}); err != nil {
		log.Printf("advance %d to %s: %v", chatID, stage, err)
	}
}

// TouchUser refreshes profile metadata and returns the current record.
func (s *FunnelService) TouchUser(ctx context.Context, chatID int64, firstName, username string) (*model.User, error) {
	return s.users.Touch(ctx, chatID, firstName, username)
}

// HandleText classifies a free-text message and applies it to the funnel.
// Messages outside the waiting stages, unclassifiable text, and anything after
// completion are ignored here; button flows live in the transport.
func (s *FunnelService) HandleText(ctx context.Context, chatID int64, firstName, username, text string) error {
	user, err := s.users.Touch(ctx, chatID, firstName, username)
	if err != nil {
		return err
	}

	if user.CurrentStage == model.StageFollowup3 {
		return s.handleFinalAnswer(ctx, user, text)
	}
	if !user.CurrentStage.IsWaiting() {
		return nil
	}

	switch s.classifier.Classify(text) {
	case Affirmative:
		if user.HasResponded {
			return nil
		}
		if err := s.complete(ctx, user.ChatID, model.ResponsePositive, nil); err != nil {
			return err
		}
		reply := fmt.Sprintf("Super ! 🎉 Veuillez m'envoyer un message privé et je te guide étape par étape ! 📩 @%s", s.cfg.AdminUsername)
		if err := s.gateway.SendText(user.ChatID, reply); err != nil {
			log.Printf("send conversion reply to %d: %v", user.ChatID, err)
		}
		log.Printf("[info] positive response from %d at stage %s", user.ChatID, user.CurrentStage)
		s.gateway.NotifyOperator(fmt.Sprintf("✅ Réponse OUI de %s (@%s) - Étape: %s", user.FirstName, displayUsername(user), user.CurrentStage))

	case Negative:
		if user.HasResponded {
			return nil
		}
		if err := s.complete(ctx, user.ChatID, model.ResponseNegative, nil); err != nil {
			return err
		}
		log.Printf("[info] negative response from %d", user.ChatID)
	}
	return nil
}

// handleFinalAnswer is the terminal yes/no: a yes here also delivers the
// registration link and stamps linkSent exactly once.
func (s *FunnelService) handleFinalAnswer(ctx context.Context, user *model.User, text string) error {
	switch s.classifier.Classify(text) {
	case Affirmative:
		if user.HasResponded {
			return nil
		}
		now := s.clock.Now()
		if err := s.complete(ctx, user.ChatID, model.ResponsePositive, &now); err != nil {
			return err
		}
		link := fmt.Sprintf("Voici le lien d'inscription : %s 🚀", s.cfg.RegisterLink)
		if err := s.gateway.SendText(user.ChatID, link); err != nil {
			log.Printf("send register link to %d: %v", user.ChatID, err)
		}
		log.Printf("[info] register link sent to %d", user.ChatID)
		s.gateway.NotifyOperator(fmt.Sprintf("💰 CONVERSION! %s (@%s) a reçu le lien d'inscription (étape: %s)", user.FirstName, displayUsername(user), model.StageFollowup3))

	case Negative:
		if user.HasResponded {
			return nil
		}
		if err := s.complete(ctx, user.ChatID, model.ResponseNegative, nil); err != nil {
			return err
		}
		log.Printf("[info] final negative response from %d", user.ChatID)
	}
	return nil
}

// complete marks the record responded exactly once and clears the pending
// follow-up. linkSentAt non-nil means the registration link is being delivered.
func (s *FunnelService) complete(ctx context.Context, chatID int64, rt model.ResponseType, linkSentAt *time.Time) error {
	fields := map[string]interface{}{
		"has_responded": true,
		"response_type": rt,
		"current_stage": model.StageCompleted,
	}
	if linkSentAt != nil {
		fields["link_sent"] = true
		fields["link_sent_at"] = *linkSentAt
	}
	if err := s.users.UpdateFields(ctx, chatID, fields); err != nil {
		return err
	}
	s.scheduler.Drop(chatID)
	if err := s.nudges.Clear(ctx, chatID); err != nil {
		log.Printf("clear nudge for %d: %v", chatID, err)
	}
	return nil
}

// ResumePending re-arms persisted follow-ups after a restart. Deadlines that
// passed while the process was down fire immediately.
func (s *FunnelService) ResumePending(ctx context.Context) error {
	pending, err := s.nudges.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending nudges: %w", err)
	}
	for _, nudge := range pending {
		user, err := s.users.FindByChatID(ctx, nudge.ChatID)
		if err != nil || user.HasResponded || user.CurrentStage == model.StageCompleted {
			if err := s.nudges.Clear(ctx, nudge.ChatID); err != nil {
				log.Printf("clear stale nudge for %d: %v", nudge.ChatID, err)
			}
			continue
		}
		target := nudge.Stage
		delay := nudge.FireAt.Sub(s.clock.Now())
		s.scheduler.Schedule(nudge.ChatID, delay, func() {
			s.fireNudge(nudge.ChatID, target)
		})
		log.Printf("[info] re-armed nudge %s for %d (fires in %s)", target, nudge.ChatID, delay)
	}
	return nil
}

func displayUsername(user *model.User) string {
	if user.Username == "" {
		return "pas de username"
	}
	return user.Username
}
