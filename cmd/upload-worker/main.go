// Command upload-worker consumes the upload queue (spec.md §4.6),
// publishing each meeting's video to the external host and advancing it
// to UPLOADED. Concurrency is pinned to 1 whatever WORKER_CONCURRENCY
// says — the external host enforces its own rate limits.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/config"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
	"github.com/jonchurch/gnv-city-meetings/internal/videohost"
	"github.com/jonchurch/gnv-city-meetings/internal/workers"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	common := config.LoadCommon()
	level, err := logrus.ParseLevel(common.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	hostCfg := config.LoadVideoHostConfig()
	if hostCfg.Token == "" {
		log.Fatal("VIDEOHOST_TOKEN is required")
	}

	store, err := state.Open(common.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database connection")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Ping(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("failed to ping database")
	}
	cancel()

	artifacts, err := storage.New(storage.Config{
		Backend:       common.StorageBackend,
		LocalRoot:     common.StorageRoot,
		RemoteBaseURL: common.FileServerBaseURL(),
		S3Endpoint:    common.S3Endpoint,
		S3Bucket:      common.S3Bucket,
		S3AccessKey:   common.S3AccessKey,
		S3SecretKey:   common.S3SecretKey,
		S3Region:      common.S3Region,
		S3PathStyle:   common.S3PathStyle,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to construct artifact store")
	}

	producer := queue.NewProducer(common.RedisAddr, log)
	defer producer.Close()

	orch := orchestrator.New(store, producer, log)

	host := videohost.NewHTTPClient(hostCfg.BaseURL, hostCfg.Token, nil)
	rules, err := config.PlaylistRules()
	if err != nil {
		log.WithError(err).Fatal("failed to compile playlist rules")
	}

	scratch := config.ScratchDir("upload")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create scratch directory")
	}

	w := workers.NewUploadWorker(store, artifacts, orch, host, config.Playlists(), rules, config.LocationTag(), scratch, log)

	wc := config.LoadWorkerConfig(1)
	wc.Concurrency = 1
	log.WithFields(logrus.Fields{"concurrency": wc.Concurrency, "queue": queue.Upload}).Info("starting upload-worker")

	if err := queue.RunServer(common.RedisAddr, queue.Upload, wc.Concurrency, wc.DrainDeadline, log, w.Process); err != nil {
		log.WithError(err).Fatal("upload-worker stopped with error")
	}
}
