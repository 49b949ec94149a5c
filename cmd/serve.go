package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/config"
	"github.com/pestline/pestline/internal/quote"
	"github.com/pestline/pestline/internal/server"
	"github.com/pestline/pestline/internal/sesevents"
	"github.com/pestline/pestline/internal/store"
	"github.com/pestline/pestline/internal/throttle"
	"github.com/pestline/pestline/internal/voicemail"
	"github.com/pestline/pestline/pkg/slybroadcast"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deps, cleanup, err := buildDeps(ctx, cfg, st)
		if err != nil {
			return err
		}
		defer cleanup()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: server.New(deps, server.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Timeout:        time.Duration(cfg.Server.TimeoutSecs) * time.Second,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildDeps wires the API's collaborators around st. The returned cleanup
// releases the throttle backend.
func buildDeps(ctx context.Context, c *config.Config, st store.Store) (server.Deps, func(), error) {
	recalc := quote.NewRecalculator(st, quote.WithConcurrency(c.Quote.MaxConcurrentRecalcs))

	vm, cleanup, err := initVoicemail(ctx, c, st)
	if err != nil {
		return server.Deps{}, nil, err
	}

	deps := server.Deps{
		Store:     st,
		Recalc:    recalc,
		Voicemail: vm,
		Confirmer: sesevents.NewConfirmer(nil, zap.L()),
		Events:    sesevents.NewProcessor(st, sesevents.WithRecalculator(recalc)),
	}
	if c.SES.VerifySignatures {
		deps.Verifier = sesevents.NewVerifier(sesevents.WithCertCacheSize(c.SES.CertCacheSize))
	} else {
		zap.L().Warn("SNS signature verification disabled")
	}
	return deps, cleanup, nil
}

func initThrottle(ctx context.Context, c *config.Config) (throttle.Throttle, func(), error) {
	if c.Throttle.Backend != "redis" {
		return throttle.NewMemory(nil), func() {}, nil
	}
	th, closeFn, err := throttle.NewRedisFromURL(ctx, c.Redis.URL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init redis throttle")
	}
	return th, func() { _ = closeFn() }, nil
}

func initVoicemail(ctx context.Context, c *config.Config, notes voicemail.LeadNotes) (*voicemail.Service, func(), error) {
	th, cleanup, err := initThrottle(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	sc := c.Slybroadcast
	configured := sc.UID != "" && sc.Password != ""
	var client slybroadcast.Client
	if configured {
		opts := []slybroadcast.Option{slybroadcast.WithRateLimit(sc.RateLimitPerSec)}
		if sc.BaseURL != "" {
			opts = append(opts, slybroadcast.WithBaseURL(sc.BaseURL))
		}
		client = slybroadcast.NewClient(sc.UID, sc.Password, opts...)
	}

	svc, err := voicemail.NewService(client, th, voicemail.Settings{
		Enabled:          sc.Enabled,
		Configured:       configured,
		DefaultAudioFile: sc.DefaultAudioFile,
		DefaultCallerID:  sc.DefaultCallerID,
		Interval:         time.Duration(c.Throttle.VoicemailSeconds) * time.Second,
	}, voicemail.WithLeadNotes(notes))
	if err != nil {
		cleanup()
		return nil, nil, eris.Wrap(err, "init voicemail")
	}
	return svc, cleanup, nil
}
