package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"teamhub/api/internal/app"
	"teamhub/api/internal/authpw"
	"teamhub/api/internal/config"
	"teamhub/api/internal/email"
	"teamhub/api/internal/filestore"
	"teamhub/api/internal/search"
	"teamhub/api/internal/session"
	"teamhub/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var sessions interface {
		Save(ctx context.Context, token string, userID int64) error
		Lookup(ctx context.Context, token string) (int64, error)
		Revoke(ctx context.Context, token string) error
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for session storage")
		sessions = session.NewPGStore(dataStore, cfg.SessionTTL)
	}

	var blobs filestore.Storage
	if cfg.StorageBackend == "s3" {
		objectStore, err := filestore.NewObjectStorage(ctx, filestore.ObjectConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Fatalf("object storage failed: %v", err)
		}
		blobs = objectStore
	} else {
		diskStore, err := filestore.NewDiskStorage(cfg.UploadDir)
		if err != nil {
			log.Fatalf("upload dir failed: %v", err)
		}
		blobs = diskStore
	}
	files := filestore.NewManager(blobs, dataStore)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(ctx)

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !emailService.IsConfigured() {
		log.Printf("WARNING: SMTP not configured, verification codes are returned in API responses")
	}

	service := app.NewService(cfg, dataStore, sessions, authpw.NewService(dataStore), emailService, files, searchService)
	defer service.Shutdown()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpServer.Handler(),
		// No blanket read/write timeouts: chat and voice sockets are
		// long-lived. Slowloris protection comes from the header timeout.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("TeamHub API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
