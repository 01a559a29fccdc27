package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookmylawn/internal/api"
	"bookmylawn/internal/app"
	"bookmylawn/internal/bot"
	"bookmylawn/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := app.LoadConfigAndLogger("bot-main")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := cfg.ValidateBot(); err != nil {
		logger.Error().Err(err).Msg("Задайте токен бота и операторов в config.yaml")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации ядра")
		return err
	}
	defer core.Close()

	app.StartMetrics(ctx, cfg.Monitoring, &logger)
	core.Start(ctx)

	// HTTP API в том же процессе, если включен
	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, core.Auth, core.Bookings, core.Views, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	tgService := service.NewTelegramService(bot.NewBotWrapper(botAPI))
	telegramBot := bot.NewBot(tgService, core.Bookings, core.Auth, core.State, cfg.Bot, loc, &logger)

	logger.Info().Msg("Бот запущен...")
	go func() {
		<-ctx.Done()
		telegramBot.Stop()
	}()
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}
