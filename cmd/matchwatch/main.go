// matchwatch is a headless trivia match client: it joins a match (by id
// or code), keeps the local mirror in sync with the authoritative
// server over the realtime channel, and logs game progress. Useful for
// watching a match from a terminal and for exercising the sync engine
// against a live server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/odxplay/triviasync/internal/api"
	"github.com/odxplay/triviasync/internal/config"
	"github.com/odxplay/triviasync/internal/phase"
	"github.com/odxplay/triviasync/internal/session"
	"github.com/odxplay/triviasync/internal/transport"
	"github.com/odxplay/triviasync/internal/trivia"
	"github.com/odxplay/triviasync/internal/trivia/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restClient := api.NewClient(cfg.APIBaseURL)
	if cfg.Token != "" {
		restClient.SetToken(cfg.Token)
	}

	matchID := cfg.MatchID
	if matchID == "" && cfg.MatchCode != "" {
		match, err := restClient.JoinMatch(ctx, cfg.MatchCode, cfg.Username)
		if err != nil {
			log.Fatal().Err(err).Str("code", cfg.MatchCode).Msg("failed to join match by code")
		}
		matchID = match.ID
		log.Info().Str("match_id", matchID).Str("code", match.Code).Msg("joined match")
	}
	if matchID == "" {
		log.Fatal().Msg("MATCH_ID or MATCH_CODE is required")
	}

	st := store.New()
	clock := clockwork.NewRealClock()

	transportConfig := transport.DefaultConfig(cfg.WSURL)
	transportConfig.Token = cfg.Token
	rt := transport.NewClient(transportConfig, st)

	machine := phase.NewMachine(st, clock)
	machine.OnPhaseChange(func(p trivia.GamePhase) {
		log.Info().Str("phase", string(p)).Msg("phase changed")
	})

	sess := session.New(matchID, st, rt, restClient, machine)

	rt.OnStatusChange(func(connected bool) {
		log.Info().Bool("connected", connected).Msg("connectivity changed")
	})
	rt.Subscribe(trivia.EventAnswerSubmitted, func(env trivia.Envelope) {
		payload, err := trivia.ParseEventPayload(&env)
		if err != nil {
			return
		}
		if p, ok := payload.(trivia.AnswerSubmittedPayload); ok {
			log.Info().
				Str("player_id", p.PlayerID).
				Bool("correct", p.IsCorrect).
				Int("points", p.Points).
				Msg("answer scored")
		}
	})
	rt.Subscribe(trivia.EventMatchEnded, func(env trivia.Envelope) {
		if result := st.MatchResult(); result != nil {
			log.Info().
				Str("winner", result.Winner).
				Int("score_a", result.FinalScores.A).
				Int("score_b", result.FinalScores.B).
				Msg("match ended")
		}
	})

	if err := sess.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start match session")
	}
	defer sess.Close()

	if match := st.Match(); match != nil {
		log.Info().
			Str("match_id", match.ID).
			Str("status", string(match.Status)).
			Str("current_turn", string(match.CurrentTurn)).
			Int("score_a", match.Teams.A.Score).
			Int("score_b", match.Teams.B.Score).
			Msg("match state loaded")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")
}
