package commands

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers pprof handlers on http.DefaultServeMux
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/access"
	"github.com/fenwick-labs/browsergate/internal/handlers"
	"github.com/fenwick-labs/browsergate/internal/metrics"
	"github.com/fenwick-labs/browsergate/internal/middleware"
	"github.com/fenwick-labs/browsergate/internal/selectors"
	"github.com/fenwick-labs/browsergate/internal/transport"
	"github.com/fenwick-labs/browsergate/pkg/version"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway that serializes access to the shared browser profile",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	coord, err := buildCoordination()
	if err != nil {
		return fmt.Errorf("build coordination: %w", err)
	}
	setupLogging(coord.cfg.LogLevel)

	sel, err := selectors.NewManager(coord.cfg.SelectorsPath, coord.cfg.SelectorsHotReload)
	if err != nil {
		return fmt.Errorf("load selector aliases: %w", err)
	}
	defer sel.Close()

	guard := access.New(coord.cfg, coord.pk, coord.sess, coord.lock, coord.arbiter, coord.reg)
	h := handlers.New(coord.cfg, sel, coord.wm, coord.reg)
	srv := transport.NewServer(coord.cfg, guard, h, coord.lock, coord.sess)

	metrics.SetBuildInfo(version.Full(), version.GoVersion())
	stopMemCollector := make(chan struct{})
	go metrics.StartMemoryCollector(15*time.Second, stopMemCollector)
	defer close(stopMemCollector)

	stopJanitor := make(chan struct{})
	go runRegistryJanitor(coord, stopJanitor)
	defer close(stopJanitor)

	finalHandler := buildMiddlewareChain(coord, srv.Mux())

	addr := fmt.Sprintf("%s:%d", coord.cfg.Host, coord.cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           finalHandler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var pprofServer *http.Server
	if coord.cfg.PProfEnabled {
		pprofAddr := fmt.Sprintf("%s:%d", coord.cfg.PProfBindAddr, coord.cfg.PProfPort)
		pprofServer = &http.Server{Addr: pprofAddr, Handler: http.DefaultServeMux}
		go func() {
			log.Warn().Str("addr", pprofAddr).Msg("pprof server enabled, exposes runtime internals")
			if err := pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go func() {
		log.Info().Str("address", addr).Str("profile_key", coord.pk).Msg("browsergate is ready to accept requests")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)

	log.Info().Msg("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if pprofServer != nil {
		if err := pprofServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("pprof server shutdown error")
		}
	}
	if err := coord.sess.TearDown(); err != nil {
		log.Error().Err(err).Msg("session teardown error")
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// buildMiddlewareChain wraps mux the same way for every run: CORS and
// security headers first, then optional auth and rate limiting, then
// logging, with panic recovery outermost so it catches everything below it.
func buildMiddlewareChain(coord *coordination, mux http.Handler) http.Handler {
	cfg := coord.cfg
	final := mux

	final = middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins})(final)
	final = middleware.SecurityHeaders(final)

	if cfg.APIKeyEnabled {
		log.Info().Msg("API key authentication enabled")
		final = middleware.APIKey(cfg)(final)
	}

	if cfg.RateLimitEnabled {
		log.Info().Int("requests_per_minute", cfg.RateLimitRPM).Msg("rate limiting enabled")
		rl := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		final = rl.Handler()(final)
	}

	final = middleware.Logging(final)
	final = middleware.Recovery(final)
	return final
}

// runRegistryJanitor periodically sweeps orphaned registry entries, per
// §4.4's "best effort, run periodically" cleanup contract.
func runRegistryJanitor(coord *coordination, stop <-chan struct{}) {
	ticker := time.NewTicker(coord.staleThreshold() / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d := coord.sess.Driver()
			if d == nil {
				continue
			}
			removed := coord.reg.ScanAndClean(d, coord.staleThreshold())
			if len(removed) > 0 {
				log.Info().Strs("agent_tags", removed).Msg("registry janitor removed orphaned entries")
			}
		}
	}
}
