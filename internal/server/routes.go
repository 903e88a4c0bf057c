package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"doodlesync/internal/blobs"
	"doodlesync/internal/config"
	"doodlesync/internal/db"
	"doodlesync/internal/kv"
	"doodlesync/internal/metrics"
	"doodlesync/internal/replica"
	"doodlesync/internal/wshub"
)

const redisPrefix = "doodlesync:"

func Run() error {
	appCfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(appCfg.LogLevel)
	log := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, appCfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	blobStore, err := openBlobs(ctx, appCfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	srv := &Server{Gatherer: reg, Log: log}

	relayURL := appCfg.RelayURL
	if relayURL == "" {
		srv.Hub = wshub.NewHub(log)
		relayURL = "ws://127.0.0.1:" + appCfg.Port + "/relay"
		log.Info("RELAY_URL not set, hosting the relay in-process")
	}
	client, err := wshub.NewClient(relayURL, appCfg.ReplicaID, log)
	if err != nil {
		return err
	}

	rep, err := replica.New(ctx, appCfg.ReplicaID, store, client, replica.Options{
		InviteTTL:            appCfg.InviteTTL,
		MatchSize:            appCfg.MatchSize,
		MatchRounds:          uint32(appCfg.MatchRounds),
		MatchSecondsPerRound: uint32(appCfg.MatchSecondsPerRound),
		Logger:               log,
		Metrics:              m,
		Blobs:                blobStore,
	})
	if err != nil {
		return fmt.Errorf("starting replica: %w", err)
	}
	srv.Replica = rep

	httpSrv := &http.Server{
		Addr:              "0.0.0.0:" + appCfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", appCfg.Port).Info("server listening")
		serveErr <- httpSrv.ListenAndServe()
	}()

	go func() {
		if err := client.Run(ctx, rep); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("relay client stopped")
		}
	}()

	sched, err := StartInvitationSweep(ctx, rep, appCfg.InviteSweepInterval, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.WithError(err).Warn("stopping scheduler")
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// openStore picks Postgres, then Redis, then memory. A configured backend
// that cannot be reached is an error; running on memory is only for when
// nothing is configured.
func openStore(ctx context.Context, cfg config.Config, log *logrus.Entry) (kv.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		log.Info("state stored in postgres")
		return database, closer(log, database), nil
	case cfg.RedisURL != "":
		rdb, err := kv.ConnectRedis(ctx, cfg.RedisURL, redisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info("state stored in redis")
		return rdb, closer(log, rdb), nil
	}
	log.Warn("DATABASE_URL and REDIS_URL not set, state is kept in memory")
	return kv.NewMemory(), func() {}, nil
}

func closer(log *logrus.Entry, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("closing store")
		}
	}
}

func openBlobs(ctx context.Context, cfg config.Config, log *logrus.Entry) (blobs.Store, error) {
	if cfg.BlobBucket == "" {
		log.Warn("BLOB_BUCKET not set, blobs are kept in memory")
		return blobs.NewMemory(), nil
	}
	s3, err := blobs.NewS3(ctx, blobs.S3Config{
		Bucket:          cfg.BlobBucket,
		Endpoint:        cfg.BlobEndpoint,
		Region:          cfg.BlobRegion,
		AccessKeyID:     cfg.BlobAccessKeyID,
		SecretAccessKey: cfg.BlobSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("opening blob bucket: %w", err)
	}
	return s3, nil
}
