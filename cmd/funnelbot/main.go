package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"funnel-bot/internal/bot"
	"funnel-bot/internal/config"
	"funnel-bot/internal/repository"
	"funnel-bot/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	nudgeRepo := repository.NewNudgeRepository(db)

	telegramBot, err := bot.New(cfg.TelegramToken, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	clock := service.NewRealClock()
	nudgeScheduler := service.NewNudgeScheduler(clock)
	classifier := service.NewClassifier(nil, nil)

	funnelSvc := service.NewFunnelService(&cfg, userRepo, nudgeRepo, telegramBot, classifier, nudgeScheduler, clock)
	gateSvc := service.NewGateService(cfg.RequiredChannelIDs, userRepo, telegramBot)
	adminSvc := service.NewAdminService(userRepo, telegramBot, clock, cfg.BroadcastDelay)
	telegramBot.Attach(funnelSvc, gateSvc, adminSvc)

	if err := funnelSvc.ResumePending(ctx); err != nil {
		log.Printf("resume pending nudges: %v", err)
	}

	scheduler := service.NewSchedulerService(time.Local)
	if cfg.ReportInterval > 0 && cfg.AdminID != 0 {
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			stats, err := adminSvc.Summary(jobCtx)
			if err != nil {
				log.Printf("periodic report: %v", err)
				return
			}
			if err := telegramBot.SendMarkdown(cfg.AdminID, service.FormatReport(stats)); err != nil {
				log.Printf("send periodic report: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule reports: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	log.Println("Funnel bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
