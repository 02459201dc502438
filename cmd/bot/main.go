package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jloh02/anchored-amazing-race/internal/approval"
	"github.com/jloh02/anchored-amazing-race/internal/auth"
	"github.com/jloh02/anchored-amazing-race/internal/bonus"
	"github.com/jloh02/anchored-amazing-race/internal/cache"
	"github.com/jloh02/anchored-amazing-race/internal/config"
	"github.com/jloh02/anchored-amazing-race/internal/docstore"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/race"
	"github.com/jloh02/anchored-amazing-race/internal/repository"
	"github.com/jloh02/anchored-amazing-race/internal/seed"
	"github.com/jloh02/anchored-amazing-race/internal/server"
	"github.com/jloh02/anchored-amazing-race/internal/sheets"
	"github.com/jloh02/anchored-amazing-race/internal/tgbot"
)

func main() {
	_ = godotenv.Load()

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	zerologlog.Logger = zerologlog.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	log := zerologlog.Logger

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("LOG_LEVEL")
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := docstore.Open(cfg.RedisURL, cfg.RedisPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("redis ping")
	}

	var events journal.Journal
	if cfg.DatabaseURL != "" {
		pg, err := journal.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pg.Close()
		events = pg
	} else {
		events = journal.NewRedis(store.Client(), cfg.RedisPrefix, 0)
	}

	var source seed.Source = seed.DirSource{Dir: cfg.SeedDir}
	if cfg.SeedSource == config.SeedFromSheets {
		sh, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			log.Fatal().Err(err).Msg("sheets")
		}
		log.Info().Str("spreadsheet", sh.SpreadsheetID()).Msg("seeding from sheets")
		source = sh
	}

	repo := repository.New(store, cache.New[string, string](), cache.New[string, models.Location]())
	bonusMgr := bonus.New(repo, cfg.MaxBonusGroups, log)
	engine := race.New(repo, bonusMgr, events, race.Config{
		NumberLocations:   cfg.NumberLocations,
		LocationFreshness: cfg.LocationFreshness,
		Endpoint:          models.GeoPoint{Lat: cfg.EndLat, Lng: cfg.EndLng},
		EndToleranceM:     cfg.EndToleranceMeters,
	}, log)
	tokens := auth.NewIssuer(cfg.DashboardSecret, cfg.DashboardTTL)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}
	api.Debug = false
	log.Info().Str("bot", api.Self.UserName).Msg("authorized")

	botApp := tgbot.New(cfg, api, tgbot.Deps{
		Repo:      repo,
		Race:      engine,
		Bonus:     bonusMgr,
		Approvals: approval.New(repo, log),
		Seed:      source,
		Tokens:    tokens,
		Log:       log,
	})
	httpSrv := server.New(cfg.HTTPAddr, server.Deps{
		Progress: engine,
		Journal:  events,
		Tokens:   tokens,
		Log:      log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := botApp.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("stopped")
	}
	log.Info().Msg("bye")
}
