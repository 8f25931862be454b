package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	DatabaseURL   string `envconfig:"DATABASE_URL" default:"funnel_bot.db"`

	// PublicURL switches inbound updates to webhook mode when set
	// (e.g. https://bot.example.com); empty means long polling.
	PublicURL string `envconfig:"SERVER_URL"`
	Port      int    `envconfig:"PORT" default:"3000"`

	AdminID       int64  `envconfig:"ADMIN_TELEGRAM_ID"`
	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"juzzpp"`

	// Telegram file IDs of the scripted media, in send order.
	StartVideo        string   `envconfig:"VIDEO_START"`
	TestimonialVideos []string `envconfig:"TESTIMONIAL_VIDEOS"`
	FinalVideos       []string `envconfig:"FINAL_VIDEOS"`

	VIPChannelURL      string   `envconfig:"CHANNEL_VIP" default:"https://t.me/+tPrtqmEX7otiMmM0"`
	ChannelURLs        []string `envconfig:"CHANNEL_URLS"`
	RequiredChannelIDs []string `envconfig:"REQUIRED_CHANNEL_IDS"`

	RegisterLink string `envconfig:"LINK_REGISTER" default:"https://example.com"`
	BotAppleFURL string `envconfig:"BOT_APPLE_F" default:"https://t.me/applefbot"`
	BotKamiURL   string `envconfig:"BOT_KAMI" default:"https://t.me/kamibot"`
	BotCrashURL  string `envconfig:"BOT_CRASH" default:"https://t.me/crashbot"`

	IntroDelay    time.Duration `envconfig:"INTRO_DELAY" default:"15s"`
	MediaGap      time.Duration `envconfig:"MEDIA_GAP" default:"1s"`
	QuestionDelay time.Duration `envconfig:"QUESTION_DELAY" default:"30s"`
	Nudge1Delay   time.Duration `envconfig:"NUDGE1_DELAY" default:"5m"`
	Nudge2Delay   time.Duration `envconfig:"NUDGE2_DELAY" default:"30m"`
	Nudge3Delay   time.Duration `envconfig:"NUDGE3_DELAY" default:"12h"`
	// FinalPromptDelay is the pause between the final video batch and the
	// final prompt.
	FinalPromptDelay time.Duration `envconfig:"FINAL_PROMPT_DELAY" default:"10s"`

	BroadcastDelay time.Duration `envconfig:"BROADCAST_DELAY" default:"100ms"`
	// ReportInterval enables a periodic stats report to the admin; 0 disables.
	ReportInterval time.Duration `envconfig:"STATS_REPORT_INTERVAL" default:"0"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	if cfg.Port <= 0 {
		return cfg, fmt.Errorf("PORT must be positive, got %d", cfg.Port)
	}
	return cfg, nil
}
