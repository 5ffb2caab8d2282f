package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-tax/internal/app"
	"github.com/noah-isme/toko-tax/internal/jurisdiction"
	"github.com/noah-isme/toko-tax/internal/obs"
)

func main() {
	envErr := godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), os.Getenv("OBS_LOG_LEVEL"))
	if envErr != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	defaultSeed := os.Getenv("JURISDICTION_SEED_FILE")
	if defaultSeed == "" {
		defaultSeed = "cmd/tools/seeder/jurisdictions.json"
	}
	seedPath := flag.String("seed", defaultSeed, "path to the jurisdiction seed file")
	migrateFirst := flag.Bool("migrate", true, "apply schema migrations before importing")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	seed, err := jurisdiction.LoadSeed(*seedPath)
	if err != nil {
		logger.Fatal().Err(err).Str("seed", *seedPath).Msg("load seed")
	}

	if *migrateFirst {
		m, err := jurisdiction.NewMigrator(dbURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		_, _ = m.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := jurisdiction.Import(ctx, pool, seed); err != nil {
		logger.Fatal().Err(err).Msg("import jurisdictions")
	}

	jurisdictions := 0
	for _, s := range seed.Stores {
		jurisdictions += len(s.Jurisdictions)
	}
	logger.Info().
		Int("stores", len(seed.Stores)).
		Int("jurisdictions", jurisdictions).
		Msg("seeding completed")
}
