package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/pkg/queue"
)

const popTimeout = 5 * time.Second

var ErrUnknownJob = errors.New("unknown job type")

// PaymentJobs 支付相关的后台操作
type PaymentJobs interface {
	Recheck(ctx context.Context, reference string) error
	SendReceipt(ctx context.Context, reference string) error
}

// JobSource 任务来源
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error)
}

// Processor 任务处理器
type Processor struct {
	payments PaymentJobs
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewProcessor 创建任务处理器
func NewProcessor(payments PaymentJobs, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		payments: payments,
		metrics:  m,
		logger:   logger.With().Str("component", "worker").Logger(),
	}
}

// Process 按任务类型分发
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	var err error
	switch job.Type {
	case queue.JobPaymentRecheck:
		var payload queue.PaymentRecheckPayload
		if err = job.Decode(&payload); err == nil {
			err = p.payments.Recheck(ctx, payload.Reference)
		}
	case queue.JobSendEmail:
		var payload queue.SendEmailPayload
		if err = job.Decode(&payload); err == nil {
			err = p.sendEmail(ctx, payload)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownJob, job.Type)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.JobProcessed(job.Type, status)
	return err
}

func (p *Processor) sendEmail(ctx context.Context, payload queue.SendEmailPayload) error {
	switch payload.Kind {
	case queue.EmailPaymentReceipt:
		return p.payments.SendReceipt(ctx, payload.Reference)
	default:
		return fmt.Errorf("%w: email %s", ErrUnknownJob, payload.Kind)
	}
}

// Run 启动 workers 个消费者，ctx 取消后返回
func (p *Processor) Run(ctx context.Context, src JobSource, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			p.consume(ctx, src, workerID)
			return nil
		})
	}
	p.logger.Info().Int("workers", workers).Msg("worker started")
	return g.Wait()
}

func (p *Processor) consume(ctx context.Context, src JobSource, workerID int) {
	log := p.logger.With().Int("worker_id", workerID).Logger()
	for {
		if ctx.Err() != nil {
			log.Debug().Msg("worker shutting down")
			return
		}

		job, err := src.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to pop job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		start := time.Now()
		if err := p.Process(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Str("type", job.Type).Msg("job failed")
			continue
		}
		log.Debug().Str("job_id", job.ID).Str("type", job.Type).Dur("took", time.Since(start)).Msg("job done")
	}
}
