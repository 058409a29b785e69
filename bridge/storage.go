// Package bridge adapts an external key-value store to a callback-correlated
// command contract. Every command is answered with exactly one
// adapter.Envelope handed to the injected dispatcher, unless the store is
// missing from the host altogether.
package bridge

import (
	"github.com/MeteorsLiu/kvbridge/adapter"
	"go.uber.org/zap"
)

var (
	undefinedEnvelope = adapter.Envelope{Result: adapter.Success, Data: adapter.Undefined}
	failedEnvelope    = adapter.Envelope{Result: adapter.Failed, Data: adapter.Undefined}
	// setItem and getItem/removeItem report a bad argument differently.
	invalidSetEnvelope = adapter.Envelope{Result: adapter.InvalidParam, Data: adapter.Undefined}
	invalidKeyEnvelope = adapter.Envelope{Result: adapter.Failed, Data: adapter.InvalidParamData}
)

type Storage struct {
	store             adapter.Store
	sender            adapter.Dispatcher
	capability        adapter.Capability
	reportUnavailable bool
	log               *zap.Logger
}

func New(store adapter.Store, sender adapter.Dispatcher, opts ...Option) *Storage {
	s := &Storage{
		store:  store,
		sender: sender,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.capability == nil {
		s.capability = adapter.CapabilityFunc(func() bool {
			return s.store != nil
		})
	}
	return s
}

// available returns false when the command must stop here. In reporting
// mode the unavailable envelope has already been delivered.
func (s *Storage) available(op, callbackID string) (adapter.Envelope, bool, bool) {
	if s.store != nil && s.capability.Available() {
		return adapter.Envelope{}, false, true
	}
	s.log.Error("storage is not available on this host", zap.String("op", op), zap.String("callback", callbackID))
	if !s.reportUnavailable {
		return adapter.Envelope{}, false, false
	}
	env := adapter.Envelope{Result: adapter.Unavailable, Data: adapter.Undefined}
	s.deliver(callbackID, env)
	return env, true, false
}

func (s *Storage) deliver(callbackID string, env adapter.Envelope) {
	s.sender.PerformCallback(callbackID, env)
}

// SetItem adds key to the store or replaces its value. Both key and value
// must be non-empty. Any store error, quota exhaustion included, is
// reported as {failed, undefined}.
//
// The returned envelope is the one handed to the dispatcher; delivered is
// false only when the store is unavailable and nothing was sent.
func (s *Storage) SetItem(key, value, callbackID string) (env adapter.Envelope, delivered bool) {
	if env, delivered, ok := s.available("setItem", callbackID); !ok {
		return env, delivered
	}
	switch {
	case key == "" || value == "":
		env = invalidSetEnvelope
	default:
		if err := s.store.SetItem(key, value); err != nil {
			s.log.Warn("setItem failed", zap.String("key", key), zap.Error(err))
			env = failedEnvelope
		} else {
			env = undefinedEnvelope
		}
	}
	s.deliver(callbackID, env)
	return env, true
}

// GetItem reads key. A present but empty value is indistinguishable from an
// absent one and both answer {failed, undefined}.
func (s *Storage) GetItem(key, callbackID string) (env adapter.Envelope, delivered bool) {
	if env, delivered, ok := s.available("getItem", callbackID); !ok {
		return env, delivered
	}
	if key == "" {
		env = invalidKeyEnvelope
	} else if val, ok := s.store.GetItem(key); ok && val != "" {
		env = adapter.Envelope{Result: adapter.Success, Data: val}
	} else {
		env = failedEnvelope
	}
	s.deliver(callbackID, env)
	return env, true
}

// RemoveItem deletes key without checking that it exists.
func (s *Storage) RemoveItem(key, callbackID string) (env adapter.Envelope, delivered bool) {
	if env, delivered, ok := s.available("removeItem", callbackID); !ok {
		return env, delivered
	}
	if key == "" {
		env = invalidKeyEnvelope
	} else {
		s.store.RemoveItem(key)
		env = undefinedEnvelope
	}
	s.deliver(callbackID, env)
	return env, true
}

func (s *Storage) Length(callbackID string) (env adapter.Envelope, delivered bool) {
	if env, delivered, ok := s.available("length", callbackID); !ok {
		return env, delivered
	}
	env = adapter.Envelope{Result: adapter.Success, Data: s.store.Length()}
	s.deliver(callbackID, env)
	return env, true
}

// GetAllKeys lists every key in the store's native order.
func (s *Storage) GetAllKeys(callbackID string) (env adapter.Envelope, delivered bool) {
	if env, delivered, ok := s.available("getAllKeys", callbackID); !ok {
		return env, delivered
	}
	env = adapter.Envelope{Result: adapter.Success, Data: s.keys()}
	s.deliver(callbackID, env)
	return env, true
}

func (s *Storage) keys() []string {
	if kl, ok := s.store.(adapter.KeyLister); ok {
		if keys := kl.Keys(); keys != nil {
			return keys
		}
		return []string{}
	}
	n := s.store.Length()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if k, ok := s.store.Key(i); ok {
			keys = append(keys, k)
		}
	}
	return keys
}
