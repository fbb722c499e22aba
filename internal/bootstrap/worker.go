package bootstrap

import (
	"context"
	"sync"
	"time"

	"mailsync_server/adapter/in/worker"
	"mailsync_server/config"
	"mailsync_server/internal/stream"
	"mailsync_server/pkg/logger"
)

// Worker runs the stream consumer and the periodic sync scheduler.
type Worker struct {
	consumer  *stream.Consumer
	scheduler *worker.SyncScheduler
	deps      *Dependencies
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewWorker(cfg *config.Config, deps *Dependencies) (*Worker, error) {
	syncProcessor := worker.NewSyncProcessor(deps.Orchestrator)
	handler := worker.NewHandler(syncProcessor)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}

	if deps.Stream != nil {
		w.consumer = stream.NewConsumer(deps.Stream, handler, cfg.WorkerID)
		w.scheduler = worker.NewSyncScheduler(deps.AccountRepo, deps.Producer,
			time.Duration(cfg.SyncIntervalMin)*time.Minute)
	} else {
		logger.Warn("Redis not available, worker has no job source")
	}

	return w, nil
}

func (w *Worker) Start() {
	if w.consumer != nil {
		w.consumer.Start(w.ctx)
		logger.Info("Stream consumer started")
	}
	if w.scheduler != nil {
		w.scheduler.Start()
	}

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	w.wg.Wait()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
