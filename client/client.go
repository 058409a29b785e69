package client

import (
	"encoding/json"
	"io"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/common/gorpc"
	"github.com/MeteorsLiu/simpleMQ/queue"
	"github.com/MeteorsLiu/simpleMQ/worker"
	"go.uber.org/zap"
)

type Options func(*Client)
type Middleware func(task queue.Task, serviceMethod string, args any, reply any)

type RunMethod int

const (
	SYNC RunMethod = iota
	ASYNC
	ONCE
)

// Job is a failed call kept in the journal until it is replayed.
type Job struct {
	// task id
	ID        string
	RunMethod RunMethod
	Method    string
	Args      json.RawMessage
}

type Client struct {
	block       bool
	noretry     bool
	finalizers  []queue.Finalizer
	middlewares []Middleware
	nq          *worker.Worker
	mq          *worker.Worker
	rpc         adapter.Client
	journal     adapter.Store
	log         *zap.Logger
}

// WithJournal keeps failed calls in store and replays them when the next
// Client is built on the same store.
func WithJournal(store adapter.Store) Options {
	return func(c *Client) {
		c.journal = store
	}
}

func WithWorker(w *worker.Worker) Options {
	return func(c *Client) {
		c.mq = w
	}
}

func WithMiddleware(m Middleware) Options {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, m)
	}
}

func WithLogger(log *zap.Logger) Options {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func DisableRetry() Options {
	return func(c *Client) {
		c.noretry = true
	}
}

func EnableNonBlocking() Options {
	return func(c *Client) {
		c.block = false
	}
}

func WithFinalizer(f queue.Finalizer) Options {
	return func(c *Client) {
		c.finalizers = append(c.finalizers, f)
	}
}

func NewClient(rpc adapter.Client, opts ...Options) *Client {
	c := &Client{
		block: true,
		nq:    worker.NewWorker(0, 0, nil, true),
		// limit the worker number
		mq:  worker.NewWorker(10000, 1, queue.NewSimpleQueue(queue.WithSimpleQueueCap(10000)), true),
		rpc: rpc,
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.doRecoverJob()
	return c
}

func (c *Client) doMiddleware(task queue.Task, serviceMethod string, args any, reply any) {
	for _, m := range c.middlewares {
		m(task, serviceMethod, args, reply)
	}
}

func (c *Client) runMethod() RunMethod {
	if c.block {
		return SYNC
	}
	return ASYNC
}

// pendingJobs drains the journal. Keys are collected first because
// removing items shifts positional indexes.
func (c *Client) pendingJobs() []Job {
	n := c.journal.Length()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if id, ok := c.journal.Key(i); ok {
			ids = append(ids, id)
		}
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		info, ok := c.journal.GetItem(id)
		c.journal.RemoveItem(id)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(info), &job); err != nil || job.ID == "" {
			c.log.Warn("skip corrupt journal entry", zap.String("id", id), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (c *Client) doRecoverJob() {
	if c.journal == nil {
		return
	}
	for _, job := range c.pendingJobs() {
		c.log.Info("replay journaled call", zap.String("id", job.ID), zap.String("method", job.Method))
		switch job.RunMethod {
		case SYNC:
			c.Call(job.Method, job.Args, nil)
		case ASYNC:
			c.CallAsync(job.Method, job.Args, nil)
		case ONCE:
			c.CallOnce(job.Method, job.Args, nil)
		}
	}
}

func (c *Client) doSaveJob(task queue.Task, runMethod RunMethod, serviceMethod string, args any) {
	if c.journal == nil {
		return
	}
	raw, err := json.Marshal(args)
	if err != nil {
		c.log.Error("cannot journal call", zap.String("method", serviceMethod), zap.Error(err))
		return
	}
	job := &Job{
		ID:        task.ID(),
		RunMethod: runMethod,
		Method:    serviceMethod,
		Args:      raw,
	}
	b, _ := json.Marshal(job)
	if err := c.journal.SetItem(job.ID, string(b)); err != nil {
		c.log.Error("cannot journal call", zap.String("method", serviceMethod), zap.Error(err))
	}
}

// callFunc keeps server errors out of the retry loop. The error is kept
// in serverErr so synchronous callers still see it.
func (c *Client) callFunc(call func() error, serverErr *error) func() error {
	return func() error {
		err := call()
		if gorpc.IsRPCServerError(err) {
			*serverErr = err
			return nil
		}
		return err
	}
}

func (c *Client) newTask(serviceMethod string, args any, reply any, opts ...queue.TaskOptions) (queue.Task, *error) {
	if c.noretry {
		opts = append(opts, queue.WithNoRetryFunc())
	}
	serverErr := new(error)
	task := queue.NewTask(c.callFunc(func() error {
		return c.rpc.Call(serviceMethod, args, reply)
	}, serverErr), opts...)
	c.doMiddleware(task, serviceMethod, args, reply)
	task.OnDone(c.finalizers...)
	return task, serverErr
}

// publishSync runs task to completion and reports the transport error or,
// failing that, the error the server answered with.
func (c *Client) publishSync(task queue.Task, serverErr *error, finalizer ...queue.Finalizer) error {
	if err := c.nq.PublishSync(task, finalizer...); err != nil {
		return err
	}
	return *serverErr
}

func (c *Client) CallAsync(serviceMethod string, args any, reply any, finalizer ...queue.Finalizer) error {
	task, _ := c.newTask(serviceMethod, args, reply)
	task.OnDone(func(ok bool, task queue.Task) {
		if !ok {
			c.doSaveJob(task, ASYNC, serviceMethod, args)
		}
	})

	c.mq.Publish(task, finalizer...)
	return nil
}

func (c *Client) Call(serviceMethod string, args any, reply any, finalizer ...queue.Finalizer) error {
	task, serverErr := c.newTask(serviceMethod, args, reply)
	task.OnDone(func(ok bool, task queue.Task) {
		if !ok {
			c.doSaveJob(task, c.runMethod(), serviceMethod, args)
		}
	})

	if !c.block {
		c.mq.Publish(task, finalizer...)
		return nil
	}
	return c.publishSync(task, serverErr, finalizer...)
}

func (c *Client) CallOnce(serviceMethod string, args any, reply any, finalizer ...queue.Finalizer) error {
	task, serverErr := c.newTask(serviceMethod, args, reply, queue.WithNoRetryFunc())

	if !c.block {
		c.nq.Publish(task, finalizer...)
		return nil
	}
	return c.publishSync(task, serverErr, finalizer...)
}

func (c *Client) CallWithConn(conn io.ReadWriteCloser, serviceMethod string, args any, reply any, finalizer ...queue.Finalizer) error {
	serverErr := new(error)
	task := queue.NewTask(c.callFunc(func() error {
		return c.rpc.CallWithConn(conn, serviceMethod, args, reply)
	}, serverErr), queue.WithNoRetryFunc())
	c.doMiddleware(task, serviceMethod, args, reply)
	task.OnDone(c.finalizers...)
	if !c.block {
		c.mq.Publish(task, finalizer...)
		return nil
	}
	return c.publishSync(task, serverErr, finalizer...)
}

func (c *Client) Close() error {
	c.nq.Stop()
	c.mq.Stop()
	return c.rpc.Close()
}
