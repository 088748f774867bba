// Command extract-worker consumes the extract queue (spec.md §4.6),
// parsing each meeting's agenda page into chapters and metadata, and
// advancing it to EXTRACTED.
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

	calCfg := config.LoadCalendarConfig()

	scratch := config.ScratchDir("extract")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create scratch directory")
	}

	w := workers.NewExtractWorker(store, artifacts, orch, calCfg.BaseURL, calCfg.HTTPTimeout, scratch, log)

	wc := config.LoadWorkerConfig(3)
	log.WithFields(logrus.Fields{"concurrency": wc.Concurrency, "queue": queue.Extract}).Info("starting extract-worker")

	if err := queue.RunServer(common.RedisAddr, queue.Extract, wc.Concurrency, wc.DrainDeadline, log, w.Process); err != nil {
		log.WithError(err).Fatal("extract-worker stopped with error")
	}
}
