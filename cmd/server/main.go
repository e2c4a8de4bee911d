package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/parley/internal/adapters/tcp"
	"github.com/dkeye/parley/internal/adapters/udp"
	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/protocol"
	"github.com/dkeye/parley/internal/storage"

	router "github.com/dkeye/parley/internal/adapters/http"
)

func main() {
	configPath := pflag.String("config", "config.yaml", "path to the configuration file")
	voiceDebug := pflag.Bool("voice-debug", false, "loop voice packets back to the sender (echo testing)")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *voiceDebug {
		log.Info().Msg("voice debug mode enabled")
	}

	store, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()
	writer := storage.NewAsyncWriter(store)
	defer writer.Close()

	sessions := app.NewSessionTable()
	channels := app.NewChannelRegistry()
	if err := preloadChannels(store, channels); err != nil {
		log.Fatal().Err(err).Msg("failed to load channels")
	}

	info := app.NewServerInfo(cfg.Name, cfg.MaxClients)
	mediaTable := app.NewMediaTable()

	handler := app.NewHandler(sessions, channels, mediaTable, info, writer)
	handler.PrivilegeKey = cfg.PrivilegeKey
	handler.SaveInfo = func(name string, maxClients int) {
		cfg.Name = name
		cfg.MaxClients = maxClients
		if err := cfg.Save(); err != nil {
			log.Error().Err(err).Msg("failed to persist server info")
		}
	}

	udpSrv := udp.NewServer()
	media := app.NewMediaHandler(sessions, channels, mediaTable, udpSrv)
	media.Loopback = *voiceDebug
	udpSrv.Media = media

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tcpSrv := tcp.NewServer(handler)
	if err := tcpSrv.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start control transport")
	}
	if err := udpSrv.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start media transport")
	}

	go tcpSrv.Run(ctx)
	go udpSrv.Run(ctx)
	go app.NewLivenessMonitor(handler, media).Run(ctx)

	var httpSrv *http.Server
	if cfg.HTTPPort > 0 {
		r := router.SetupRouter(cfg.Mode, sessions, channels, info)
		httpSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort),
			Handler: r,
		}
		go func() {
			log.Info().Str("addr", httpSrv.Addr).Msg("status API started")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("status API error")
			}
		}()
	}

	log.Info().Str("addr", addr).Str("name", cfg.Name).Msg("server started")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	sessions.Broadcast(&protocol.Disconnect{Reason: "Server stopped."})
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status API forced to shutdown")
		}
	}
	log.Info().Msg("server exited gracefully")
}

// preloadChannels installs stored channels with their most recent page of
// history so freshly connected clients can render immediately.
func preloadChannels(store storage.Store, channels *app.ChannelRegistry) error {
	stored, err := store.LoadChannels()
	if err != nil {
		return err
	}
	for _, ch := range stored {
		var recent []*domain.ChannelMessage
		if ch.Type == domain.ChannelText {
			recent, err = store.LoadRecentMessages(ch.ID, domain.MessagesPerPage)
			if err != nil {
				return err
			}
		}
		channels.Preload(ch, recent)
	}
	log.Info().Int("channels", len(stored)).Msg("channels loaded")
	return nil
}
