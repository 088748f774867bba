// Command discovery runs the periodic calendar poll (spec.md §4.5): on a
// fixed cron schedule it acquires the single-run advisory lock, fetches
// newly published meetings for the current month, and enqueues a
// download job for each. It also exposes a manual trigger over SIGUSR1
// for operators who don't want to wait for the next tick. A second,
// independent cron job runs the orchestrator's reconciliation sweep
// (spec.md §4.4/§9), re-enqueuing any meeting that advanced phase but
// lost its job to a crash between the state update and the enqueue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/calendar"
	"github.com/jonchurch/gnv-city-meetings/internal/config"
	"github.com/jonchurch/gnv-city-meetings/internal/discovery"
	"github.com/jonchurch/gnv-city-meetings/internal/metrics"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
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

	calCfg := config.LoadCalendarConfig()
	schedule := getEnv("DISCOVERY_CRON", "0 */6 * * *")
	lockTTL := 10 * time.Minute

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

	producer := queue.NewProducer(common.RedisAddr, log)
	defer producer.Close()

	cal := calendar.New(calCfg.BaseURL, calCfg.UTCOffset, calCfg.HTTPTimeout)
	svc := discovery.New(cal, store, producer, log)
	lock := discovery.NewRunLock(common.RedisAddr, lockTTL)
	defer lock.Close()

	admin := queue.NewAdmin(common.RedisAddr)
	defer admin.Close()
	reconciler := orchestrator.NewReconciler(store, admin, producer, log)
	reconcileSchedule := getEnv("RECONCILE_CRON", "*/10 * * * *")

	loc := time.FixedZone("calendar", 0)

	runOnce := func() {
		runCtx, runCancel := context.WithTimeout(context.Background(), lockTTL)
		defer runCancel()

		acquired, err := lock.TryAcquire(runCtx)
		if err != nil {
			metrics.DiscoveryRuns.WithLabelValues("error").Inc()
			log.WithError(err).Error("discovery run lock acquisition failed")
			return
		}
		if !acquired {
			metrics.DiscoveryRuns.WithLabelValues("lock_held").Inc()
			log.Warn("discovery run already in progress, skipping tick")
			return
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.WithError(err).Error("failed to release discovery run lock")
			}
		}()

		from, to := calendar.DateRangeForCurrentMonth(time.Now(), loc)
		result, err := svc.Run(runCtx, from, to)
		if err != nil {
			metrics.DiscoveryRuns.WithLabelValues("error").Inc()
			log.WithError(err).Error("discovery run failed")
			return
		}
		metrics.DiscoveryRuns.WithLabelValues("ok").Inc()
		log.WithFields(logrus.Fields{
			"fetched":  result.Fetched,
			"inserted": result.Inserted,
			"skipped":  result.Skipped,
		}).Info("discovery run complete")
	}

	runReconcile := func() {
		runCtx, runCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer runCancel()

		repaired, err := reconciler.Sweep(runCtx)
		if err != nil {
			log.WithError(err).Error("reconciliation sweep failed")
			return
		}
		if repaired > 0 {
			metrics.ReconcileRepaired.Add(float64(repaired))
		}
		log.WithField("repaired", repaired).Info("reconciliation sweep complete")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.WithError(err).Fatal("failed to create scheduler")
	}

	_, err = sched.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(runOnce),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule discovery job")
	}

	_, err = sched.NewJob(
		gocron.CronJob(reconcileSchedule, false),
		gocron.NewTask(runReconcile),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule reconciliation job")
	}

	sched.Start()
	log.WithFields(logrus.Fields{"discoverySchedule": schedule, "reconcileSchedule": reconcileSchedule}).
		Info("discovery poller started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			log.Info("manual discovery trigger received")
			go runOnce()
			continue
		}
		log.WithField("signal", sig.String()).Info("shutting down discovery poller")
		break
	}

	if err := sched.Shutdown(); err != nil {
		log.WithError(err).Error("scheduler shutdown error")
	}
	log.Info("discovery poller stopped")
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
