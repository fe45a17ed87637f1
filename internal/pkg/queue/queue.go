package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 任务类型
const (
	JobPaymentRecheck = "payment_recheck"
	JobSendEmail      = "send_email"
)

type Queue struct {
	client     *redis.Client
	queueName  string
	delayedKey string
}

// Job 队列任务，Payload 由任务类型决定
type Job struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	RunAt    time.Time       `json:"run_at,omitempty"`
	Attempts int             `json:"attempts"`
	Payload  json.RawMessage `json:"payload"`
}

// PaymentRecheckPayload 移动支付状态复查
type PaymentRecheckPayload struct {
	Reference string `json:"reference"`
}

// SendEmailPayload 事务邮件
type SendEmailPayload struct {
	Kind      string `json:"kind"`
	Reference string `json:"reference,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
}

// 邮件类型
const (
	EmailPaymentReceipt = "payment_receipt"
)

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:     client,
		queueName:  queueName,
		delayedKey: queueName + ":delayed",
	}
}

// NewJob 构造任务
func NewJob(jobType string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Job{ID: uuid.NewString(), Type: jobType, Payload: data}, nil
}

// Decode 解析任务负载
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Push 立即入队
func (q *Queue) Push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.LPush(ctx, q.queueName, data).Err()
}

// PushAt 延迟到 runAt 之后执行
func (q *Queue) PushAt(ctx context.Context, job *Job, runAt time.Time) error {
	job.RunAt = runAt.UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.ZAdd(ctx, q.delayedKey, &redis.Z{
		Score:  float64(runAt.Unix()),
		Member: data,
	}).Err()
}

// PromoteDue 将到期的延迟任务移入就绪队列
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	moved := 0
	for _, member := range due {
		// 多个 worker 并发时只有删除成功的一方负责入队
		n, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.queueName, member).Err(); err != nil {
			return moved, fmt.Errorf("failed to enqueue delayed job: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Pop 从队列获取任务（阻塞），超时返回 nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	if _, err := q.PromoteDue(ctx, time.Now()); err != nil {
		return nil, err
	}

	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Length 获取就绪队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// DelayedLength 获取延迟任务数量
func (q *Queue) DelayedLength(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.delayedKey).Result()
}
