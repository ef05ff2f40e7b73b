package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	taskTypeAudit = "auth:audit"
	queueName     = "audit"

	enqueueTimeout = 2 * time.Second
)

// Sink は処理済みイベントの保存先です。
type Sink interface {
	Insert(ctx context.Context, ev *Event) error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager はイベントのキュー投入とワーカー処理を担います。
type Manager struct {
	client enqueuer
	server *asynq.Server
	mux    *asynq.ServeMux
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewManager は Redis URL から Manager を初期化します。
func NewManager(redisURL string, sink Sink, logger *slog.Logger) (*Manager, error) {
	if sink == nil {
		return nil, errors.New("sink is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			queueName: 1,
		},
	})

	m := newManager(asynq.NewClient(opt), sink, logger)
	m.server = server
	return m, nil
}

func newManager(client enqueuer, sink Sink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		client: client,
		mux:    asynq.NewServeMux(),
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
	m.mux.HandleFunc(taskTypeAudit, m.handleTask)
	return m
}

// StartWorkers は asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	if m.server == nil {
		return
	}
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("audit worker stopped with error", "error", err)
		}
	}()
}

// Shutdown はワーカーとクライアントを停止します。
func (m *Manager) Shutdown() {
	if m.server != nil {
		m.server.Shutdown()
	}
	_ = m.client.Close()
}

// Record はイベントをキューに投入します。
// 認証処理を止めないため、失敗はログに残すだけで呼び出し元には返しません。
func (m *Manager) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = m.now().UTC()
	}

	body, err := json.Marshal(&ev)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to encode audit event", "error", err)
		return
	}

	// リクエストが中断されても投入は完了させる
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	task := asynq.NewTask(taskTypeAudit, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(enqueueCtx, task, asynq.MaxRetry(3)); err != nil {
		m.logger.ErrorContext(ctx, "failed to enqueue audit event",
			"action", ev.Action, "event_id", ev.ID, "error", err)
	}
}

func (m *Manager) handleTask(ctx context.Context, task *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("decode audit event: %v: %w", err, asynq.SkipRetry)
	}
	if ev.ID == "" {
		return fmt.Errorf("missing event id: %w", asynq.SkipRetry)
	}
	return m.sink.Insert(ctx, &ev)
}
