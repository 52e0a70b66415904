package main

import (
	"context"
	"os"

	"beehive/internal/config"
	"beehive/internal/database"
	"beehive/internal/logging"
	"beehive/internal/migrations"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	logs := logging.New(logging.Options{Service: "beehive-migrate", Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logs.Named("migrate")

	db, err := database.Connect(context.Background(), cfg, logs.Named("database"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	ran, err := migrations.Apply(context.Background(), db, log)
	if err != nil {
		log.Fatal().Err(err).Strs("applied", ran).Msg("apply migrations")
	}

	log.Info().Int("count", len(ran)).Msg("migrations applied")
}
