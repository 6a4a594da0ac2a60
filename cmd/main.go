package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sgrastar/authrim-sub002/internal/config"
	"github.com/sgrastar/authrim-sub002/internal/logger"
	"github.com/sgrastar/authrim-sub002/internal/model"
	"github.com/sgrastar/authrim-sub002/internal/repository/postgres"
	"github.com/sgrastar/authrim-sub002/internal/rotation"
	"github.com/sgrastar/authrim-sub002/internal/session"
	"github.com/sgrastar/authrim-sub002/internal/signing"
	storage "github.com/sgrastar/authrim-sub002/internal/storage/minio"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

// rotationCheckInterval is how often the autorotation loop re-evaluates
// whether the active signing key is due for replacement.
const rotationCheckInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	var backup model.Backup
	if cfg.Backup.Enabled {
		minioClient, err := minio.New(cfg.Backup.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Backup.AccessKey, cfg.Backup.SecretKey, ""),
			Secure: cfg.Backup.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to create minio client", "error", err)
		}
		backupClient, err := storage.NewClient(ctx, minioClient, cfg.Backup.Bucket)
		if err != nil {
			logger.Fatal("failed to initialize backup client", "error", err)
		}
		backup = backupClient
	}

	sessions := session.NewStore(
		cfg.Sharding.SessionShards,
		postgres.NewSessionRepository(db),
		backup,
		logger.Component("sessions"),
	)
	rotator := rotation.NewRotator(
		cfg.Sharding.RefreshShards,
		postgres.NewTokenFamilyRepository(db),
		backup,
		logger.Component("rotation"),
	)
	keyManager, err := signing.NewManager(
		ctx,
		postgres.NewSigningKeyRepository(db),
		cfg.Admin.Secret,
		model.RotationConfig{
			RotationIntervalDays: cfg.Rotation.IntervalDays,
			RetentionPeriodDays:  cfg.Rotation.RetentionDays,
		},
		logger.Component("signing"),
	)
	if err != nil {
		logger.Fatal("failed to initialize key manager", "error", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweeper(ctx, logger, cfg.Sweep.IntervalMinutes, sessions, rotator)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runKeyRotation(ctx, logger, keyManager, cfg.Admin.Secret)
	}()

	logAppVersion()
	logger.Info("identity state core started",
		"session_shards", cfg.Sharding.SessionShards,
		"refresh_shards", cfg.Sharding.RefreshShards)

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	wg.Wait()
	logger.Info("shutdown complete")
}

// runSweeper removes expired sessions and token families on a fixed interval.
func runSweeper(ctx context.Context, logger *logger.Logger, intervalMinutes int, sessions *session.Store, rotator *rotation.Rotator) {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sessions.SweepExpired(ctx, now)
			rotator.SweepExpired(ctx, now)
		}
	}
}

// runKeyRotation bootstraps the first signing key and then rotates whenever
// the configured interval elapses.
func runKeyRotation(ctx context.Context, logger *logger.Logger, manager *signing.Manager, credential string) {
	rotateIfDue := func(now time.Time) {
		due, err := manager.ShouldRotate(credential, now)
		if err != nil {
			logger.Error("signing key rotation check failed", "error", err)
			return
		}
		if !due {
			return
		}
		if _, err := manager.Rotate(ctx, credential); err != nil {
			logger.Error("signing key rotation failed", "error", err)
		}
	}

	rotateIfDue(time.Now())

	ticker := time.NewTicker(rotationCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rotateIfDue(now)
		}
	}
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
