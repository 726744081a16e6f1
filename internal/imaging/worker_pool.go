package imaging

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/koios/iconforge/pkg/models"
	"go.uber.org/zap"
)

// ResizeJob represents one rendition to be produced by a worker
type ResizeJob struct {
	Image  image.Image
	Size   models.IconSize
	Result chan *ResizeResult
}

// ResizeResult contains the result of a resize job
type ResizeResult struct {
	PNG   []byte
	Error error
}

// WorkerPool manages a fixed set of resize workers shared by all requests
type WorkerPool struct {
	workers  int
	jobQueue chan *ResizeJob
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan *ResizeJob, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Workers returns the number of workers in the pool
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Start launches all worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info("Starting resize worker pool",
		zap.Int("workers", wp.workers),
		zap.Int("queue_size", cap(wp.jobQueue)))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels pending submissions and waits for the workers to exit
func (wp *WorkerPool) Stop() {
	wp.logger.Info("Stopping resize worker pool")
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Resize worker pool stopped")
}

// Submit queues a resize of img to size and waits for the PNG bytes
func (wp *WorkerPool) Submit(ctx context.Context, img image.Image, size models.IconSize) ([]byte, error) {
	resultChan := make(chan *ResizeResult, 1)

	job := &ResizeJob{
		Image:  img,
		Size:   size,
		Result: resultChan,
	}

	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, fmt.Errorf("worker pool is shutting down")
	}

	select {
	case result := <-resultChan:
		return result.PNG, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, fmt.Errorf("worker pool is shutting down")
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Resize worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-wp.jobQueue:
			wp.processJob(id, job)
		case <-wp.ctx.Done():
			wp.logger.Debug("Resize worker stopping", zap.Int("worker_id", id))
			return
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *ResizeJob) {
	data, err := ResizeImage(job.Image, job.Size.Width, job.Size.Height, job.Size.Fit())

	// Result is buffered, so an abandoned submitter never blocks the worker
	job.Result <- &ResizeResult{PNG: data, Error: err}

	if err != nil {
		wp.logger.Debug("Worker completed resize with error",
			zap.Int("worker_id", workerID),
			zap.String("size", job.Size.Name),
			zap.Error(err))
		return
	}

	wp.logger.Debug("Worker completed resize",
		zap.Int("worker_id", workerID),
		zap.String("size", job.Size.Name),
		zap.String("dimensions", job.Size.Dimensions()),
		zap.Int("bytes", len(data)))
}
