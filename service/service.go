// Package service exposes a bridge.Storage as a net/rpc receiver. Each
// call waits for the envelope addressed to its callback id and returns it
// as the reply.
package service

import (
	"context"
	"time"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/bridge"
	"github.com/MeteorsLiu/kvbridge/dispatch"
	"github.com/google/uuid"
)

const Name = "Storage"

const (
	MethodSetItem    = Name + ".SetItem"
	MethodGetItem    = Name + ".GetItem"
	MethodRemoveItem = Name + ".RemoveItem"
	MethodLength     = Name + ".Length"
	MethodGetAllKeys = Name + ".GetAllKeys"
)

type Args struct {
	Key        string
	Value      string
	CallbackID string
}

type Storage struct {
	bridge  *bridge.Storage
	reg     *dispatch.Registry
	timeout time.Duration
}

func New(b *bridge.Storage, reg *dispatch.Registry, timeout time.Duration) *Storage {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Storage{bridge: b, reg: reg, timeout: timeout}
}

// Register publishes s under Name.
func Register(srv adapter.Server, s *Storage) error {
	return srv.RegisterName(Name, s)
}

func (s *Storage) await(args *Args, reply *adapter.Envelope, invoke func(id string)) error {
	id := args.CallbackID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	env, err := s.reg.Await(ctx, id, invoke)
	if err != nil {
		return err
	}
	*reply = env
	return nil
}

func (s *Storage) SetItem(args *Args, reply *adapter.Envelope) error {
	return s.await(args, reply, func(id string) {
		s.bridge.SetItem(args.Key, args.Value, id)
	})
}

func (s *Storage) GetItem(args *Args, reply *adapter.Envelope) error {
	return s.await(args, reply, func(id string) {
		s.bridge.GetItem(args.Key, id)
	})
}

func (s *Storage) RemoveItem(args *Args, reply *adapter.Envelope) error {
	return s.await(args, reply, func(id string) {
		s.bridge.RemoveItem(args.Key, id)
	})
}

func (s *Storage) Length(args *Args, reply *adapter.Envelope) error {
	return s.await(args, reply, func(id string) {
		s.bridge.Length(id)
	})
}

func (s *Storage) GetAllKeys(args *Args, reply *adapter.Envelope) error {
	return s.await(args, reply, func(id string) {
		s.bridge.GetAllKeys(id)
	})
}
