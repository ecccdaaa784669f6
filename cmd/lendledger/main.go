package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LendLedger/internal/config"
	"LendLedger/internal/core"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/observability"
	"LendLedger/internal/persistence"
	"LendLedger/internal/projection"
	"LendLedger/internal/query"
	"LendLedger/internal/server"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// replayBatch is how many logged operations recovery loads per query
const replayBatch = 1000

var logger = observability.NewLogger("main")

func main() {
	cfg, err := config.Load(os.Getenv("LEND_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	observability.ConfigureLogging(cfg.Log)
	defer observability.CloseLogging()
	logger = observability.NewLogger("main")

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("LendLedger stopped with error")
		observability.CloseLogging()
		os.Exit(1)
	}
	logger.Info().Msg("LendLedger shutdown complete")
}

func run(cfg config.Config) error {
	logger.Info().Msg("LendLedger starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("Postgres connected")

	if err := persistence.NewMigrator(db, cfg.MigrationsDir).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()
	snapMgr := persistence.NewSnapshotManager(db)

	// Persist blocks (backpressure); projection drops when full
	persistChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)

	// --- Recovery: snapshot + replay ---
	lendingCore, err := recoverCore(ctx, cfg, snapMgr, persistChan, projectionChan, persistence.NewPostgresIdempotencyChecker(db), metrics)
	if err != nil {
		return err
	}

	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics)
	if err := projWorker.Rebuild(ctx, lendingCore.CreateSnapshotState()); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		return fmt.Errorf("ensure NATS streams: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		return fmt.Errorf("ensure outbound stream: %w", err)
	}

	healthChecker.AddProbe("postgres", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	healthChecker.AddProbe("nats", func() error {
		if nc.Status() != nats.CONNECTED {
			return fmt.Errorf("nats %s", nc.Status())
		}
		return nil
	})

	// --- Output pipeline ---
	// core -> persistence -> committed -> publisher; it outlives ingestion
	// so every applied operation is flushed before exit.
	committedChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	publishChan := make(chan ingestion.PublishableEvent, cfg.IngestChanSize)

	persistWorker := persistence.NewPersistenceWorker(db, persistChan, committedChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout(), metrics)
	publisher := ingestion.NewOutboundPublisher(js, publishChan)

	pipeline, pipeCtx := errgroup.WithContext(context.Background())
	pipeline.Go(func() error {
		defer close(committedChan)
		return persistWorker.Run(pipeCtx)
	})
	pipeline.Go(func() error {
		return projWorker.Run(pipeCtx)
	})
	pipeline.Go(func() error {
		defer close(publishChan)
		for out := range committedChan {
			if out.Envelope == nil {
				continue
			}
			select {
			case publishChan <- ingestion.AppliedEvent(out):
			case <-pipeCtx.Done():
				return pipeCtx.Err()
			}
		}
		return nil
	})
	pipeline.Go(func() error {
		return publisher.Run(pipeCtx)
	})

	// --- Ingestion and serving ---
	submitter := ingestion.NewSubmitter(lendingCore, publishChan, metrics)
	rawChan := make(chan ingestion.RawEvent, cfg.IngestChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawChan)

	svc := server.NewLendingService(submitter, query.NewQueryService(db, cfg.Protocol.SlotsPerYear, metrics))
	srv := server.NewServer(cfg.GRPCAddr, cfg.HTTPAddr, svc, healthChecker)

	ingest, ingestCtx := errgroup.WithContext(ctx)
	if err := subscriber.Subscribe(ingestCtx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	ingest.Go(func() error {
		submitter.Run(ingestCtx, rawChan)
		return nil
	})
	ingest.Go(func() error {
		return srv.StartGRPC(ingestCtx)
	})
	ingest.Go(func() error {
		return srv.StartHTTPGateway(ingestCtx)
	})
	ingest.Go(func() error {
		return serveMetrics(ingestCtx, cfg.MetricsAddr)
	})
	ingest.Go(func() error {
		runPeriodicSnapshots(ingestCtx, lendingCore, snapMgr, cfg.SnapshotInterval, metrics)
		return nil
	})
	ingest.Go(func() error {
		reportChannels(ingestCtx, metrics, map[string]func() (int, int){
			"persist":    func() (int, int) { return len(persistChan), cap(persistChan) },
			"projection": func() (int, int) { return len(projectionChan), cap(projectionChan) },
			"ingest":     func() (int, int) { return len(rawChan), cap(rawChan) },
			"publish":    func() (int, int) { return len(publishChan), cap(publishChan) },
		})
		return nil
	})

	healthChecker.SetReady(true)
	srv.SetServing(true)
	logger.Info().
		Int64("next_sequence", lendingCore.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("LendLedger ready")

	// --- Shutdown ---
	// Stop intake first, then drain the output pipeline, then snapshot.
	<-ingestCtx.Done()
	healthChecker.SetReady(false)
	srv.SetServing(false)
	subscriber.Stop()
	ingestErr := ingest.Wait()
	if ingestErr != nil {
		logger.Error().Err(ingestErr).Msg("ingestion stopped with error")
	}

	close(persistChan)
	close(projectionChan)
	if err := pipeline.Wait(); err != nil {
		logger.Error().Err(err).Msg("output pipeline stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := takeSnapshot(shutdownCtx, lendingCore, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	}
	return ingestErr
}

// recoverCore builds the core from the latest verified snapshot and replays
// the logged operations after it.
func recoverCore(
	ctx context.Context,
	cfg config.Config,
	snapMgr *persistence.SnapshotManager,
	persistChan, projectionChan chan<- core.CoreOutput,
	dbChecker core.DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*core.LendingCore, error) {
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	lendingCore, err := core.NewLendingCore(cfg.CoreConfig(0), persistChan, projectionChan, dbChecker, metrics)
	if err != nil {
		return nil, fmt.Errorf("build core: %w", err)
	}
	if snap != nil {
		if err := lendingCore.RestoreFromSnapshot(snap); err != nil {
			return nil, fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		logger.Info().Int64("sequence", snap.Sequence).Msg("restored snapshot")
	} else {
		logger.Info().Msg("no snapshot found, cold start")
	}

	start := time.Now()
	replayed, err := replayEventsFromLog(ctx, snapMgr, lendingCore)
	if err != nil {
		return nil, fmt.Errorf("event replay: %w", err)
	}
	if metrics != nil {
		metrics.ReplayEventsTotal.Add(float64(replayed))
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	if err := lendingCore.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("post-recovery invariants: %w", err)
	}
	logger.Info().
		Int("replayed", replayed).
		Int64("next_sequence", lendingCore.GetSequence()).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return lendingCore, nil
}

// replayEventsFromLog re-applies every logged operation from the core's
// next sequence to the head of the log.
func replayEventsFromLog(ctx context.Context, snapMgr *persistence.SnapshotManager, lendingCore *core.LendingCore) (int, error) {
	replayed := 0
	for {
		rows, err := snapMgr.LoadEventsFrom(ctx, lendingCore.GetSequence(), replayBatch)
		if err != nil {
			return replayed, err
		}
		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return replayed, err
			}
			op, err := ingestion.ParseOperation(row.EventType, row.Payload)
			if err != nil {
				return replayed, fmt.Errorf("seq %d: %w", row.Sequence, err)
			}
			if err := lendingCore.Replay(env, op); err != nil {
				return replayed, err
			}
			replayed++
		}
		if len(rows) < replayBatch {
			return replayed, nil
		}
	}
}

// runPeriodicSnapshots saves a snapshot every interval applied operations.
// A snapshot is verified against the event log once its sequence is
// durable; only verified snapshots are used for recovery.
func runPeriodicSnapshots(ctx context.Context, lendingCore *core.LendingCore, snapMgr *persistence.SnapshotManager, interval int64, metrics *observability.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	lastSnapshot := lendingCore.GetSequence()
	var unverified *core.SnapshotState

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if unverified != nil {
			if err := snapMgr.VerifySnapshot(ctx, unverified); err != nil {
				logger.Debug().Err(err).Int64("sequence", unverified.Sequence).Msg("snapshot not yet verifiable")
			} else {
				logger.Info().Int64("sequence", unverified.Sequence).Msg("snapshot verified")
				unverified = nil
			}
		}

		if lendingCore.GetSequence()-lastSnapshot < interval {
			continue
		}
		snap, err := saveSnapshot(ctx, lendingCore, snapMgr, metrics)
		if err != nil {
			logger.Error().Err(err).Msg("periodic snapshot failed")
			continue
		}
		lastSnapshot = snap.Sequence + 1
		unverified = snap
	}
}

func saveSnapshot(ctx context.Context, lendingCore *core.LendingCore, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics) (*core.SnapshotState, error) {
	start := time.Now()
	snap := lendingCore.CreateSnapshotState()
	size, err := snapMgr.SaveSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotSizeBytes.Set(float64(size))
		metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	logger.Info().Int64("sequence", snap.Sequence).Int("bytes", size).Msg("snapshot saved")
	return snap, nil
}

// takeSnapshot saves and verifies a snapshot; used at shutdown once the
// persistence worker has flushed.
func takeSnapshot(ctx context.Context, lendingCore *core.LendingCore, snapMgr *persistence.SnapshotManager, metrics *observability.Metrics) error {
	snap, err := saveSnapshot(ctx, lendingCore, snapMgr, metrics)
	if err != nil {
		return err
	}
	if snap.Sequence < 0 {
		return nil
	}
	return snapMgr.VerifySnapshot(ctx, snap)
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func reportChannels(ctx context.Context, metrics *observability.Metrics, channels map[string]func() (int, int)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, sizeOf := range channels {
				size, capacity := sizeOf()
				metrics.SetChannelMetrics(name, size, capacity)
			}
		}
	}
}
