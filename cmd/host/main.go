package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/adapters/rtc"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/adapters/signal"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/app"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/config"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	sessionID := domain.SessionID(uuid.NewString())
	parties := domain.PartyIDs(cfg.PlayerCount)
	session, err := domain.NewSession(sessionID, domain.PartyID(cfg.HostParty), cfg.HostAlias, parties)
	if err != nil {
		log.Fatal().Err(err).Msg("session setup failed")
	}

	registry := app.NewRegistry(session, parties)
	authority := app.NewInviteAuthority(session, app.NewRelayClient(cfg.RelayURL), cfg.PublicURL)

	transport := signal.NewClient(signal.Options{
		RelayURL:     cfg.RelayURL,
		ClientID:     uuid.NewString(),
		BackoffFloor: cfg.BackoffFloor,
		BackoffCap:   cfg.BackoffCap,
	})
	peers := rtc.NewFactory(cfg.WebRTC(), cfg.HeartbeatPeriod)
	negotiator := app.NewHostNegotiator(session, registry, authority, transport, peers)

	handle := transport.Open(sessionID, negotiator.HandleSignal)
	defer transport.Close(sessionID, handle)

	// One invite per AI slot up front; re-minting for a slot overwrites the
	// previous token.
	for _, party := range parties {
		if party == session.HostParty {
			continue
		}
		inviteCtx, inviteCancel := context.WithTimeout(ctx, 10*time.Second)
		_, link, err := authority.CreateInvite(inviteCtx, party)
		inviteCancel()
		if err != nil {
			log.Error().Err(err).Str("party", string(party)).Msg("unable to reach multiplayer service")
			continue
		}
		log.Info().Str("party", string(party)).Str("link", link).Msg("invite ready")
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, p := range registry.ListParties() {
				log.Info().Str("party", string(p.ID)).Str("mode", string(p.Mode)).
					Str("alias", p.Alias).Msg("slot status")
			}
		case <-ctx.Done():
			log.Info().Msg("host exiting")
			return
		}
	}
}
