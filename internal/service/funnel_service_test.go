package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnel-bot/internal/config"
	"funnel-bot/internal/model"
	"funnel-bot/internal/repository"
)

const testChatID int64 = 42

type funnelEnv struct {
	cfg     *config.Config
	users   *repository.UserRepository
	nudges  *repository.NudgeRepository
	gateway *fakeGateway
	clock   *fakeClock
	funnel  *FunnelService
}

func newFunnelEnv(t *testing.T) *funnelEnv {
	t.Helper()
	db := newTestDB(t)
	cfg := &config.Config{
		AdminUsername:     "operator",
		StartVideo:        "vid-start",
		TestimonialVideos: []string{"vid-t1", "vid-t2"},
		FinalVideos:       []string{"vid-f1"},
		RegisterLink:      "https://signup.example.com",
		IntroDelay:        15 * time.Second,
		MediaGap:          time.Second,
		QuestionDelay:     30 * time.Second,
		Nudge1Delay:       5 * time.Minute,
		Nudge2Delay:       30 * time.Minute,
		Nudge3Delay:       12 * time.Hour,
		FinalPromptDelay:  10 * time.Second,
	}
	clock := newFakeClock()
	gateway := newFakeGateway()
	users := repository.NewUserRepository(db)
	nudges := repository.NewNudgeRepository(db)
	funnel := NewFunnelService(cfg, users, nudges, gateway, NewClassifier(nil, nil), NewNudgeScheduler(clock), clock)
	return &funnelEnv{cfg: cfg, users: users, nudges: nudges, gateway: gateway, clock: clock, funnel: funnel}
}

func (e *funnelEnv) mustUser(t *testing.T) *model.User {
	t.Helper()
	user, err := e.users.FindByChatID(context.Background(), testChatID)
	require.NoError(t, err)
	return user
}

func TestStartPlaysIntroAndArmsFirstNudge(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()

	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", "jean42"))

	user := env.mustUser(t)
	assert.Equal(t, model.StageSentQuestion, user.CurrentStage)
	assert.False(t, user.HasResponded)
	assert.Equal(t, model.ResponseNone, user.ResponseType)

	require.Len(t, env.gateway.opening, 1)
	assert.Equal(t, "vid-start", env.gateway.opening[0].text)
	require.Len(t, env.gateway.videos, 2)
	require.Len(t, env.gateway.prompts, 1)

	pending, err := env.nudges.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.StageFollowup1, pending[0].Stage)
	assert.WithinDuration(t, env.clock.Now().Add(env.cfg.Nudge1Delay), pending[0].FireAt, time.Second)
}

func TestStartWithoutVideoSendsGreeting(t *testing.T) {
	env := newFunnelEnv(t)
	env.cfg.StartVideo = ""
	env.cfg.TestimonialVideos = nil

	require.NoError(t, env.funnel.Start(context.Background(), testChatID, "Jean", ""))

	texts := env.gateway.sentTexts(testChatID)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "Bienvenue Jean")
}

func TestPositiveResponseCompletesFunnel(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", "jean42"))

	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "jean42", "oui"))

	user := env.mustUser(t)
	assert.True(t, user.HasResponded)
	assert.Equal(t, model.ResponsePositive, user.ResponseType)
	assert.Equal(t, model.StageCompleted, user.CurrentStage)
	assert.False(t, user.LinkSent)

	texts := env.gateway.sentTexts(testChatID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Super !")
	require.Len(t, env.gateway.operator, 1)
	assert.Contains(t, env.gateway.operator[0], "Réponse OUI")

	pending, err := env.nudges.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNegativeResponseCompletesSilently(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))

	before := len(env.gateway.sentTexts(testChatID))
	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "non merci"))

	user := env.mustUser(t)
	assert.True(t, user.HasResponded)
	assert.Equal(t, model.ResponseNegative, user.ResponseType)
	assert.Equal(t, model.StageCompleted, user.CurrentStage)
	assert.Len(t, env.gateway.sentTexts(testChatID), before)
	assert.Empty(t, env.gateway.operator)
}

func TestDuplicateResponseIsIgnored(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))
	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "oui"))

	texts := len(env.gateway.sentTexts(testChatID))
	notifies := len(env.gateway.operator)

	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "oui"))

	user := env.mustUser(t)
	assert.Equal(t, model.StageCompleted, user.CurrentStage)
	assert.Equal(t, model.ResponsePositive, user.ResponseType)
	assert.Len(t, env.gateway.sentTexts(testChatID), texts)
	assert.Len(t, env.gateway.operator, notifies)
}

func TestUnclassifiedTextIsIgnored(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))

	before := len(env.gateway.sentTexts(testChatID))
	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "c'est quoi ce truc ?"))

	user := env.mustUser(t)
	assert.Equal(t, model.StageSentQuestion, user.CurrentStage)
	assert.False(t, user.HasResponded)
	assert.Len(t, env.gateway.sentTexts(testChatID), before)
}

func TestNudgeChainAdvancesThroughFollowups(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))

	env.clock.Advance(env.cfg.Nudge1Delay)
	user := env.mustUser(t)
	assert.Equal(t, model.StageFollowup1, user.CurrentStage)
	texts := env.gateway.sentTexts(testChatID)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "T'es là ?")

	env.clock.Advance(env.cfg.Nudge2Delay)
	user = env.mustUser(t)
	assert.Equal(t, model.StageFollowup2, user.CurrentStage)

	env.clock.Advance(env.cfg.Nudge3Delay)
	user = env.mustUser(t)
	assert.Equal(t, model.StageFollowup3, user.CurrentStage)
	// Final batch went out before the last prompt.
	assert.Len(t, env.gateway.videos, len(env.cfg.TestimonialVideos)+len(env.cfg.FinalVideos))

	// Terminal wait: nothing left to fire.
	pending, err := env.nudges.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNudgeIsNoOpAfterResponse(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))
	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "oui"))

	texts := len(env.gateway.sentTexts(testChatID))

	// Simulate a timer already in flight when the user answered: the guard
	// re-reads the record and must abort without sending or transitioning.
	env.funnel.fireNudge(testChatID, model.StageFollowup1)

	user := env.mustUser(t)
	assert.Equal(t, model.StageCompleted, user.CurrentStage)
	assert.Len(t, env.gateway.sentTexts(testChatID), texts)
}

func TestNudgeForUnknownChatIsNoOp(t *testing.T) {
	env := newFunnelEnv(t)
	env.funnel.fireNudge(999, model.StageFollowup1)
	assert.Empty(t, env.gateway.texts)
}

func TestFinalStagePositiveSendsRegistrationLink(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", "jean42"))
	env.clock.Advance(env.cfg.Nudge1Delay)
	env.clock.Advance(env.cfg.Nudge2Delay)
	env.clock.Advance(env.cfg.Nudge3Delay)
	require.Equal(t, model.StageFollowup3, env.mustUser(t).CurrentStage)

	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "jean42", "oui"))

	user := env.mustUser(t)
	assert.True(t, user.HasResponded)
	assert.Equal(t, model.ResponsePositive, user.ResponseType)
	assert.Equal(t, model.StageCompleted, user.CurrentStage)
	assert.True(t, user.LinkSent)
	require.NotNil(t, user.LinkSentAt)

	texts := env.gateway.sentTexts(testChatID)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], env.cfg.RegisterLink)
	require.NotEmpty(t, env.gateway.operator)
	assert.Contains(t, env.gateway.operator[len(env.gateway.operator)-1], "CONVERSION")
}

func TestStartResetsCompletedRecord(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))
	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "non"))
	require.Equal(t, model.StageCompleted, env.mustUser(t).CurrentStage)

	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))

	user := env.mustUser(t)
	assert.False(t, user.HasResponded)
	assert.Equal(t, model.ResponseNone, user.ResponseType)
	assert.Equal(t, model.StageSentQuestion, user.CurrentStage)
}

func TestResumePendingReArmsPersistedNudge(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))

	// Forget the in-memory timer, as a process restart would.
	restarted := NewFunnelService(env.cfg, env.users, env.nudges, env.gateway, NewClassifier(nil, nil), NewNudgeScheduler(env.clock), env.clock)
	require.NoError(t, restarted.ResumePending(ctx))

	env.clock.Advance(env.cfg.Nudge1Delay)
	assert.Equal(t, model.StageFollowup1, env.mustUser(t).CurrentStage)
}

func TestResumePendingClearsAnsweredChats(t *testing.T) {
	env := newFunnelEnv(t)
	ctx := context.Background()
	require.NoError(t, env.funnel.Start(ctx, testChatID, "Jean", ""))
	require.NoError(t, env.funnel.HandleText(ctx, testChatID, "Jean", "", "oui"))

	// Leave a stale row behind, as a crash between answer and cleanup could.
	require.NoError(t, env.nudges.Arm(ctx, testChatID, model.StageFollowup2, env.clock.Now()))

	restarted := NewFunnelService(env.cfg, env.users, env.nudges, env.gateway, NewClassifier(nil, nil), NewNudgeScheduler(env.clock), env.clock)
	require.NoError(t, restarted.ResumePending(ctx))

	pending, err := env.nudges.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
