package dispatch

import (
	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/simpleMQ/queue"
	"github.com/MeteorsLiu/simpleMQ/worker"
	"go.uber.org/zap"
)

type SenderOptions func(*Sender)

func WithSenderLogger(log *zap.Logger) SenderOptions {
	return func(s *Sender) {
		if log != nil {
			s.log = log
		}
	}
}

// WithWorker replaces the default delivery worker.
func WithWorker(w *worker.Worker) SenderOptions {
	return func(s *Sender) {
		s.mq = w
	}
}

// Sender hands envelopes to a worker queue, so PerformCallback returns
// before the handler runs.
type Sender struct {
	reg *Registry
	mq  *worker.Worker
	log *zap.Logger
}

func NewSender(reg *Registry, workers int, opts ...SenderOptions) *Sender {
	s := &Sender{
		reg: reg,
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.mq == nil {
		if workers <= 0 {
			workers = 10000
		}
		s.mq = worker.NewWorker(workers, 1, queue.NewSimpleQueue(queue.WithSimpleQueueCap(workers)), true)
	}
	return s
}

var _ adapter.Dispatcher = (*Sender)(nil)

func (s *Sender) PerformCallback(callbackID string, env adapter.Envelope) {
	task := queue.NewTask(func() error {
		if !s.reg.Deliver(callbackID, env) {
			s.log.Warn("drop result for unknown callback", zap.String("callback", callbackID), zap.String("result", string(env.Result)))
		}
		return nil
	}, queue.WithNoRetryFunc())
	s.mq.Publish(task)
}

func (s *Sender) Close() error {
	s.mq.Stop()
	return nil
}

// Direct delivers on the calling goroutine.
type Direct struct {
	Registry *Registry
	Log      *zap.Logger
}

func (d Direct) PerformCallback(callbackID string, env adapter.Envelope) {
	if !d.Registry.Deliver(callbackID, env) && d.Log != nil {
		d.Log.Warn("drop result for unknown callback", zap.String("callback", callbackID))
	}
}
