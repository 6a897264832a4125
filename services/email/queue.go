package emailsvc

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var errQueueClosed = errors.New("email queue closed")

type task struct {
	id  string
	msg *core.EmailMessage
}

// Queue is a core.EmailService handing messages over to background workers.
// Workers render and send each message, retrying failed sends with exponential backoff.
type Queue struct {
	sender   Sender
	logger   core.Logger
	appName  string
	workers  int
	maxTries uint

	newBackOff func() backoff.BackOff // mockable

	mu     sync.RWMutex
	tasks  chan task
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc // aborts in-flight retries
}

var _ core.EmailService = (*Queue)(nil)

func NewQueue(sender Sender, logger core.Logger, conf *core.Config) *Queue {
	size := conf.Mail.QueueSize
	if size < 1 {
		size = 1
	}
	maxTries := conf.Mail.MaxTries
	if maxTries < 1 {
		maxTries = 1
	}
	return &Queue{
		sender:   sender,
		logger:   logger,
		appName:  conf.AppName,
		workers:  conf.Mail.Workers,
		maxTries: uint(maxTries),
		tasks:    make(chan task, size),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			return b
		},
	}
}

// Start launches the workers. ctx bounds in-flight sends and retries.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	workers := q.workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for t := range q.tasks {
				q.process(ctx, t)
			}
		}()
	}
}

// Stop stops accepting messages and waits for the workers to drain the queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.wg.Wait()
	q.cancelWorkers()
}

// Shutdown is Stop bounded by ctx: once ctx is done, pending retries are cancelled and the
// messages still queued are dropped and logged. It returns ctx.Err() in that case.
func (q *Queue) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.cancelWorkers()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) cancelWorkers() {
	q.mu.RLock()
	cancel := q.cancel
	q.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// SendMessages enqueues messages without blocking. Messages that do not fit are dropped and logged.
func (q *Queue) SendMessages(messages ...*core.EmailMessage) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, msg := range messages {
		t := task{id: uuid.NewString(), msg: msg}
		if q.closed {
			q.logger.Error("dropping email", errQueueClosed, q.fields(t))
			continue
		}
		select {
		case q.tasks <- t:
		default:
			q.logger.Error("dropping email: queue full", q.fields(t))
		}
	}
}

func (q *Queue) fields(t task) map[string]interface{} {
	return map[string]interface{}{
		"task":    t.id,
		"to":      t.msg.Recipients(),
		"subject": t.msg.Subject,
	}
}

func (q *Queue) process(ctx context.Context, t task) {
	if err := ctx.Err(); err != nil {
		q.logger.Error("dropping email: queue shut down", err, q.fields(t))
		return
	}
	if err := t.msg.Render(q.appName); err != nil {
		q.logger.Error("rendering email", errors.Wrap(err, "rendering email"), q.fields(t))
		return
	}
	if !(t.msg.HasRecipients() && t.msg.HasContent()) {
		q.logger.Warn("skipping email without recipients or content", q.fields(t))
		return
	}

	notify := func(err error, next time.Duration) {
		q.logger.Warn("sending email failed, retrying in "+next.String(), err, q.fields(t))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, q.sender.Send(ctx, *t.msg)
	}, backoff.WithBackOff(q.newBackOff()), backoff.WithMaxTries(q.maxTries), backoff.WithNotify(notify))
	if err != nil {
		q.logger.Error("sending email", errors.Wrap(err, "sending email"), q.fields(t))
		return
	}
	q.logger.Debug("email sent", q.fields(t))
}
