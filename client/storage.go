package client

import (
	"fmt"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/service"
	"github.com/MeteorsLiu/simpleMQ/queue"
)

var ErrCallFailed = fmt.Errorf("storage call did not complete")

// Storage issues the five storage commands against a remote bridge.
type Storage struct {
	c *Client
}

func NewStorage(c *Client) *Storage {
	return &Storage{c: c}
}

func (s *Storage) call(method string, args *service.Args) (adapter.Envelope, error) {
	var env adapter.Envelope
	if err := s.c.Call(method, args, &env); err != nil {
		return env, err
	}
	// a reply without a result means nothing answered the command
	if env.Result == "" {
		return env, ErrCallFailed
	}
	return env, nil
}

func (s *Storage) SetItem(key, value string) (adapter.Envelope, error) {
	return s.call(service.MethodSetItem, &service.Args{Key: key, Value: value})
}

func (s *Storage) GetItem(key string) (adapter.Envelope, error) {
	return s.call(service.MethodGetItem, &service.Args{Key: key})
}

func (s *Storage) RemoveItem(key string) (adapter.Envelope, error) {
	return s.call(service.MethodRemoveItem, &service.Args{Key: key})
}

func (s *Storage) Length() (adapter.Envelope, error) {
	return s.call(service.MethodLength, &service.Args{})
}

func (s *Storage) GetAllKeys() (adapter.Envelope, error) {
	return s.call(service.MethodGetAllKeys, &service.Args{})
}

// SetItemAsync queues the write and reports its envelope to done once the
// call finishes. Failed writes are journaled when the client has a journal.
func (s *Storage) SetItemAsync(key, value string, done func(adapter.Envelope, error)) {
	env := &adapter.Envelope{}
	s.c.CallAsync(service.MethodSetItem, &service.Args{Key: key, Value: value}, env, func(ok bool, _ queue.Task) {
		if done == nil {
			return
		}
		if !ok || env.Result == "" {
			done(*env, ErrCallFailed)
			return
		}
		done(*env, nil)
	})
}
