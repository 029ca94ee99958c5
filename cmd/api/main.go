package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
	"identra.org/internal/config"
	"identra.org/internal/httpapi"
	"identra.org/internal/obs"
	"identra.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("IDENTRA_COMMIT"))
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	codec, err := auth.NewCodec(cfg.TokenSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("token codec")
	}
	resolver, err := auth.NewResolver(codec, store)
	if err != nil {
		log.Fatal().Err(err).Msg("identity resolver")
	}
	elevated, err := auth.NewElevatedIssuer(codec, cfg.ElevatedTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("elevated issuer")
	}
	recorder := audit.NewRecorder(store, log)

	api := httpapi.New(cfg, httpapi.Deps{
		Resolver:   resolver,
		Codec:      codec,
		Elevated:   elevated,
		Directory:  store,
		Recorder:   recorder,
		AuditStore: store,
		Probe:      httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("identra-api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	// Drain in-flight audit writes before the store goes away.
	recorder.Flush()
	log.Info().Msg("stopped")
}
