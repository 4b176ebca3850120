package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inkblog/auth"
	"inkblog/config"
	"inkblog/content"
	"inkblog/database"
	"inkblog/logging"
	"inkblog/notify"
	"inkblog/session"
	"inkblog/site"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func main() {
	bootstrapAdmin := flag.String("bootstrap-admin", "", "grant the admin role to the user with this email and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := logging.New(false, false)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.IsProduction(), cfg.Debug)

	db, err := database.Connect(cfg.DBURI, log, cfg.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	sessions, err := newSessionStore(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up session store")
	}

	authSvc := auth.NewService(db, sessions, auth.Options{
		SessionTTL: cfg.SessionTTL,
		BcryptCost: cfg.BcryptCost,
		Logger:     log,
	})

	if *bootstrapAdmin != "" {
		user, err := authSvc.BootstrapAdmin(context.Background(), *bootstrapAdmin)
		if err != nil {
			log.Fatal().Err(err).Str("email", *bootstrapAdmin).Msg("failed to bootstrap admin")
		}
		log.Info().Uint("user_id", user.ID).Str("email", user.Email).Msg("admin role granted")
		return
	}

	srv := site.NewServer(site.Deps{
		DB:             db,
		Auth:           authSvc,
		Content:        content.NewService(db, log),
		Sessions:       sessions,
		Mailer:         newMailer(cfg, log),
		Logger:         log,
		PublicURL:      cfg.PublicURL,
		SessionTTL:     cfg.SessionTTL,
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.Origins(),
	})

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msgf("Running on http://localhost:%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
			signals <- syscall.SIGTERM
		}
	}()

	// Block until a signal is received
	<-signals
	log.Info().Msg("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server did not drain in time")
	}
}

func newSessionStore(cfg *config.Config, db *gorm.DB) (session.Store, error) {
	if cfg.SessionBackend != config.SessionBackendRedis {
		store := session.NewGormStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := store.DeleteExpired(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	client, err := session.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return session.NewRedisStore(client), nil
}

// newMailer relays over SMTP when a host is configured and only logs otherwise.
func newMailer(cfg *config.Config, log zerolog.Logger) notify.Sender {
	if cfg.SMTPHost == "" {
		return notify.NewLogSender(log)
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.Email,
		Password: cfg.EmailPassword,
		To:       cfg.ContactTo,
		Timeout:  cfg.SMTPTimeout,
	}, log)
}
