package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// startWebhook registers the webhook with Telegram and starts the HTTP
// listener. The update endpoint lives under the bot token; the root path
// answers keep-alive probes from the hosting platform.
func (b *Bot) startWebhook(ctx context.Context) (tgbotapi.UpdatesChannel, error) {
	path := "/" + b.api.Token
	url := strings.TrimRight(b.config.PublicURL, "/") + path

	webhook, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return nil, fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := b.api.Request(webhook); err != nil {
		return nil, fmt.Errorf("set webhook: %w", err)
	}
	log.Printf("[info] webhook registered at %s", url)

	updates := b.api.ListenForWebhook(path)

	http.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "🤖 Bot actif ✅")
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", b.config.Port)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("webhook server shutdown: %v", err)
		}
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("webhook server: %v", err)
		}
	}()

	return updates, nil
}
