package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/httpapi"
	"gatekeep.org/internal/notify"
	"gatekeep.org/internal/obs"
	"gatekeep.org/internal/store/mem"
	"gatekeep.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GATEKEEP_COMMIT"))

	secret := os.Getenv("GATEKEEP_AUTH_SECRET")
	if secret == "" {
		log.Fatal("GATEKEEP_AUTH_SECRET is required")
	}

	codecOpts := []auth.CodecOption{}
	if ttl := envSeconds("GATEKEEP_ACCESS_TTL_SECONDS"); ttl > 0 {
		codecOpts = append(codecOpts, auth.WithAccessTokenTTL(ttl))
	}
	if ttl := envSeconds("GATEKEEP_EMAIL_CONFIRM_TTL_SECONDS"); ttl > 0 {
		codecOpts = append(codecOpts, auth.WithEmailConfirmationTTL(ttl))
	}
	codec, err := auth.NewCodec(secret, codecOpts...)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Without a DSN the service runs on the in-memory store; useful for
	// local development, useless in production.
	var (
		store   auth.Store
		probe   httpapi.ReadyProbe
		cleanup func()
	)
	if dsn := os.Getenv("GATEKEEP_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
		cleanup = func() { _ = pgStore.Close() }
	} else {
		log.Print("GATEKEEP_PG_DSN not set, using in-memory store")
		store = mem.New()
		cleanup = func() {}
	}

	svcOpts := []auth.ServiceOption{}
	if ttl := envSeconds("GATEKEEP_REFRESH_TTL_SECONDS"); ttl > 0 {
		svcOpts = append(svcOpts, auth.WithRefreshTokenTTL(ttl))
	}
	authSvc, err := auth.NewService(store, codec, svcOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	baseURL := os.Getenv("GATEKEEP_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	userSvc, err := auth.NewUserService(store, codec, notify.NewLogNotifier(baseURL))
	if err != nil {
		log.Fatalf("user service: %v", err)
	}

	api := httpapi.New(probe, version, authSvc, userSvc)

	addr := os.Getenv("GATEKEEP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekeep-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	cleanup()
	log.Println("Stopped")
}

func envSeconds(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		log.Fatalf("%s must be a positive integer, got %q", name, raw)
	}
	return time.Duration(secs) * time.Second
}
