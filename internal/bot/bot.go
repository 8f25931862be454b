package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"funnel-bot/internal/config"
	"funnel-bot/internal/service"
)

const (
	btnUnlockVIP    = "🔓 Débloquer mon accès au VIP"
	btnAccessReward = "🎯 Accéder au hack"
	cbCheckChannels = "check_channels"
)

// Bot aggregates the Telegram API with the funnel services. It also implements
// service.Gateway and service.MembershipChecker.
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.Config
	funnel *service.FunnelService
	gate   *service.GateService
	admin  *service.AdminService
}

func New(token string, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{api: api, config: cfg}, nil
}

// Attach wires the services built on top of this bot's gateway.
func (b *Bot) Attach(funnel *service.FunnelService, gate *service.GateService, admin *service.AdminService) {
	b.funnel = funnel
	b.gate = gate
	b.admin = admin
}

// Start receives updates until ctx is cancelled. A public URL in the
// configuration selects webhook delivery; otherwise the bot long-polls.
func (b *Bot) Start(ctx context.Context) error {
	var updates tgbotapi.UpdatesChannel
	if b.config.PublicURL != "" {
		ch, err := b.startWebhook(ctx)
		if err != nil {
			return err
		}
		updates = ch
		log.Printf("[info] receiving updates via webhook on port %d", b.config.Port)
	} else {
		updateConfig := tgbotapi.NewUpdate(0)
		updateConfig.Timeout = 60
		updates = b.api.GetUpdatesChan(updateConfig)
		go func() {
			<-ctx.Done()
			b.api.StopReceivingUpdates()
		}()
		log.Println("[info] start polling updates")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.CallbackQuery != nil:
				if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
					log.Printf("handle callback: %v", err)
				}
			case update.Message != nil:
				if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
					continue
				}
				if err := b.handleMessage(ctx, update.Message); err != nil {
					log.Printf("handle message: %v", err)
				}
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case btnUnlockVIP:
		return b.sendChannelMenu(msg.Chat.ID)
	case btnAccessReward:
		return b.handleAccessReward(ctx, msg)
	}

	return b.funnel.HandleText(ctx, msg.Chat.ID, firstName(msg.From), msg.From.UserName, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		// The intro holds long scripted pauses; never block the update loop.
		chatID := msg.Chat.ID
		first, username := firstName(msg.From), msg.From.UserName
		go func() {
			if err := b.funnel.Start(context.Background(), chatID, first, username); err != nil {
				log.Printf("funnel start for %d: %v", chatID, err)
			}
		}()
		return nil
	case "stats":
		return b.handleStats(ctx, msg)
	case "broadcast":
		return b.handleBroadcast(msg)
	default:
		// The funnel has no other commands; stay silent like the rest of
		// the scripted flow.
		return nil
	}
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.isOperator(msg.Chat.ID) {
		return b.SendText(msg.Chat.ID, "❌ Commande réservée à l'administrateur.")
	}
	stats, err := b.admin.Summary(ctx)
	if err != nil {
		log.Printf("stats: %v", err)
		return b.SendText(msg.Chat.ID, "❌ Erreur lors de la récupération des statistiques.")
	}
	return b.SendMarkdown(msg.Chat.ID, service.FormatReport(stats))
}

func (b *Bot) handleBroadcast(msg *tgbotapi.Message) error {
	if !b.isOperator(msg.Chat.ID) {
		return b.SendText(msg.Chat.ID, "❌ Commande réservée à l'administrateur.")
	}
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		return b.SendText(msg.Chat.ID, "Utilisation : /broadcast <message>")
	}

	operatorID := msg.Chat.ID
	// The broadcast throttles between recipients; run it off the update loop.
	go func() {
		result, err := b.admin.Broadcast(context.Background(), text)
		if err != nil {
			log.Printf("broadcast: %v", err)
			if err := b.SendText(operatorID, "❌ Erreur lors de la diffusion."); err != nil {
				log.Printf("broadcast report: %v", err)
			}
			return
		}
		tally := fmt.Sprintf("✅ Diffusion terminée!\n✅ Succès: %d\n❌ Échecs: %d", result.Success, result.Failed)
		if err := b.SendText(operatorID, tally); err != nil {
			log.Printf("broadcast report: %v", err)
		}
	}()
	return b.SendText(operatorID, "📢 Début de la diffusion...")
}

func (b *Bot) handleAccessReward(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.funnel.TouchUser(ctx, msg.Chat.ID, firstName(msg.From), msg.From.UserName)
	if err != nil {
		return err
	}
	if !user.ChannelsJoined {
		return b.SendText(msg.Chat.ID, "❌ Vous devez d'abord rejoindre tous les canaux et cliquer sur Check !")
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonURL("🍎 Apple F", b.config.BotAppleFURL),
			tgbotapi.NewInlineKeyboardButtonURL("🎮 Kami", b.config.BotKamiURL),
		},
		{
			tgbotapi.NewInlineKeyboardButtonURL("💥 Crash", b.config.BotCrashURL),
		},
		{
			tgbotapi.NewInlineKeyboardButtonURL("💬 Support", "https://t.me/"+b.config.AdminUsername),
		},
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, "Voici vos bots 🤖")
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(reply); err != nil {
		return err
	}
	log.Printf("[info] reward menu delivered to %d", msg.Chat.ID)
	return nil
}

func (b *Bot) sendChannelMenu(chatID int64) error {
	reply := tgbotapi.NewMessage(chatID, "Veuillez rejoindre les canaux pour avoir ton accès 🔐")
	reply.ReplyMarkup = b.channelMenuKeyboard()
	_, err := b.api.Send(reply)
	if err == nil {
		log.Printf("[info] channel menu sent to %d", chatID)
	}
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil {
		return nil
	}
	if cb.Data != cbCheckChannels {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			log.Printf("callback ack: %v", err)
		}
		return nil
	}

	chatID := cb.Message.Chat.ID
	ok, err := b.gate.Verify(ctx, chatID)
	if err != nil {
		log.Printf("gate verify for %d: %v", chatID, err)
		b.ackCallback(cb.ID, "❌ Erreur lors de la vérification. Réessayez plus tard.")
		return nil
	}
	if !ok {
		b.ackCallback(cb.ID, "❌ Vous devez rejoindre tous les canaux avant de vérifier!")
		log.Printf("[info] %d has not joined all channels", chatID)
		return nil
	}

	b.ackCallback(cb.ID, "✅ Vérification réussie!")
	reply := tgbotapi.NewMessage(chatID, "✅ Parfait ! Vous avez maintenant accès au VIP ! 🎉")
	reply.ReplyMarkup = vipKeyboard()
	if _, err := b.api.Send(reply); err != nil {
		log.Printf("send vip menu to %d: %v", chatID, err)
	}
	b.NotifyOperator(fmt.Sprintf("✅ %s a débloqué l'accès VIP!", firstName(cb.From)))
	return nil
}

func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		log.Printf("callback ack: %v", err)
	}
}

func (b *Bot) isOperator(chatID int64) bool {
	return b.config.AdminID != 0 && chatID == b.config.AdminID
}

/* service.Gateway implementation */

func (b *Bot) SendText(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) SendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendVideo(chatID int64, fileID string) error {
	_, err := b.api.Send(tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID)))
	return err
}

func (b *Bot) SendOpeningVideo(chatID int64, fileID string) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	video.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🔥 Rejoindre le canal", b.config.VIPChannelURL),
		),
	)
	_, err := b.api.Send(video)
	return err
}

func (b *Bot) SendDecisionPrompt(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = unlockKeyboard()
	_, err := b.api.Send(msg)
	return err
}

// NotifyOperator is best-effort: a failure is logged, never surfaced.
func (b *Bot) NotifyOperator(text string) {
	if b.config.AdminID == 0 {
		return
	}
	if err := b.SendText(b.config.AdminID, "🔔 "+text); err != nil {
		log.Printf("notify operator: %v", err)
	}
}

/* service.MembershipChecker implementation */

// ChatMemberStatus looks up a user's membership in a channel. Channel IDs may
// be numeric ("-100...") or usernames ("@channel").
func (b *Bot) ChatMemberStatus(channelID string, chatID int64) (string, error) {
	chatConfig := tgbotapi.ChatConfigWithUser{UserID: chatID}
	if numeric, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		chatConfig.ChatID = numeric
	} else {
		chatConfig.SuperGroupUsername = channelID
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chatConfig})
	if err != nil {
		return "", fmt.Errorf("get chat member %s/%d: %w", channelID, chatID, err)
	}
	return member.Status, nil
}

/* keyboards */

func unlockKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnUnlockVIP),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func vipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnUnlockVIP),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAccessReward),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func (b *Bot) channelMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonURL("VIP", b.config.VIPChannelURL)},
	}
	var row []tgbotapi.InlineKeyboardButton
	for i, url := range b.config.ChannelURLs {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL(fmt.Sprintf("Canal %d", i+1), url))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✅ Check", cbCheckChannels),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func firstName(user *tgbotapi.User) string {
	if user == nil || strings.TrimSpace(user.FirstName) == "" {
		return "ami"
	}
	return strings.TrimSpace(user.FirstName)
}
