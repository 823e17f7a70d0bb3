package main

import (
	"log"

	"harold-bot/bot"
	"harold-bot/config"
	"harold-bot/handlers"
	"harold-bot/utils"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}

	b, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal("Error creating bot", zap.Error(err))
	}
	defer b.Close()

	handlers.Register(b)

	if err := b.Run(); err != nil {
		logger.Error("bot stopped", zap.Error(err))
	}
}
