package ingestion

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/metrics"
)

// Runner 执行单个任务
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// Abandoner 可选能力：将未执行的任务置为终态
type Abandoner interface {
	Abandon(ctx context.Context, task Task, reason string) error
}

// WorkerStoppedReason 停止时仍在队列中的任务的错误信息
const WorkerStoppedReason = "Ingestion worker stopped before the job ran."

// WorkerPool 进程内任务队列：固定数量的 worker 消费有界 channel
type WorkerPool struct {
	runner  Runner
	tasks   chan Task
	workers int

	mu      sync.Mutex
	started bool
	closed  bool
	group   *errgroup.Group
}

var _ Queue = (*WorkerPool)(nil)

// NewWorkerPool 创建 worker 池
func NewWorkerPool(runner Runner, workers, size int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	return &WorkerPool{
		runner:  runner,
		tasks:   make(chan Task, size),
		workers: workers,
	}
}

// Enqueue 非阻塞入队，队列已满时返回错误
func (p *WorkerPool) Enqueue(ctx context.Context, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return apperrors.New(apperrors.CodeQueueError, "ingestion queue is closed")
	}
	select {
	case p.tasks <- task:
		metrics.IngestionQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return apperrors.New(apperrors.CodeServiceUnavailable, "ingestion queue is full")
	}
}

// Start 启动 worker；ctx 取消时正在执行的任务会在下一次等待处退出
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			p.loop(gctx, worker)
			return nil
		})
	}
	p.group = g
	logger.Info(ctx, "ingestion workers started", "workers", p.workers, "queue_size", cap(p.tasks))
}

func (p *WorkerPool) loop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			metrics.IngestionQueueDepth.Dec()
			if ctx.Err() != nil {
				p.abandon(task)
				continue
			}
			if err := p.runner.Run(ctx, task); err != nil {
				logger.Warn(ctx, "ingestion task finished with error", "worker", worker, "job_id", task.JobID, "error", err.Error())
			}
		}
	}
}

// Stop 停止接收新任务并等待 worker 退出；ctx 已取消导致未执行的任务标记为 error，不会在重启后恢复
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	g := p.group
	p.mu.Unlock()

	var err error
	if g != nil {
		err = g.Wait()
	}
	for task := range p.tasks {
		metrics.IngestionQueueDepth.Dec()
		p.abandon(task)
	}
	return err
}

func (p *WorkerPool) abandon(task Task) {
	a, ok := p.runner.(Abandoner)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Abandon(ctx, task, WorkerStoppedReason); err != nil {
		logger.Error(ctx, "failed to abandon ingestion task", err, "job_id", task.JobID)
	}
}
