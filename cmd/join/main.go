package main

import (
	"context"
	"flag"
	"net/url"
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
)

func main() {
	inviteLink := flag.String("invite", "", "invite link or raw invite id")
	alias := flag.String("alias", "guest", "display name for the claimed slot")
	flag.Parse()

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *inviteLink == "" {
		log.Fatal().Msg("an invite is required, pass -invite")
	}

	relayClient := app.NewRelayClient(cfg.RelayURL)
	resolveCtx, resolveCancel := context.WithTimeout(ctx, 10*time.Second)
	record, err := relayClient.ResolveInvite(resolveCtx, inviteID(*inviteLink))
	resolveCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("invite no longer valid")
	}
	log.Info().Str("session", string(record.SessionID)).Str("party", string(record.Party)).Msg("invite resolved")

	transport := signal.NewClient(signal.Options{
		RelayURL:     cfg.RelayURL,
		ClientID:     uuid.NewString(),
		BackoffFloor: cfg.BackoffFloor,
		BackoffCap:   cfg.BackoffCap,
	})
	peers := rtc.NewFactory(cfg.WebRTC(), cfg.HeartbeatPeriod)

	joiner, err := app.NewJoiner(transport, peers, record.SessionID, record.Party, inviteID(*inviteLink), *alias)
	if err != nil {
		log.Fatal().Err(err).Msg("bad join parameters")
	}

	handle := transport.Open(record.SessionID, joiner.HandleSignal)
	defer transport.Close(record.SessionID, handle)

	if err := joiner.Start(); err != nil {
		log.Fatal().Err(err).Msg("join request failed")
	}
	if err := joiner.Wait(ctx); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}
	log.Info().Str("party", string(record.Party)).Msg("connected, slot is yours")

	<-ctx.Done()
	joiner.Close()
	log.Info().Msg("participant exiting")
}

// inviteID accepts either a full invite link or a bare identifier.
func inviteID(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	if id := u.Query().Get("invite"); id != "" {
		return id
	}
	return s
}
