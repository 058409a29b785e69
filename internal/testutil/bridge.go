// Package testutil wires an in-memory bridge behind a real JSON-RPC
// listener for tests across the module. Never import this in production
// code.
package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/bridge"
	"github.com/MeteorsLiu/kvbridge/common/gorpc"
	"github.com/MeteorsLiu/kvbridge/dispatch"
	"github.com/MeteorsLiu/kvbridge/service"
	"github.com/MeteorsLiu/kvbridge/storage/memory"
)

// Server is a running bridge bound to 127.0.0.1.
type Server struct {
	Addr     string
	Store    *memory.Memory
	Registry *dispatch.Registry
	Bridge   *bridge.Storage
}

// StartServer serves a fresh memory store until the test ends.
func StartServer(t *testing.T, opts ...bridge.Option) *Server {
	t.Helper()
	return StartServerWithStore(t, memory.New(), nil, opts...)
}

// StartServerWithStore serves store. A nil capability uses the store's own
// availability.
func StartServerWithStore(t *testing.T, store *memory.Memory, capability adapter.Capability, opts ...bridge.Option) *Server {
	t.Helper()
	reg := dispatch.NewRegistry()
	sender := dispatch.NewSender(reg, 64)
	if capability == nil {
		capability = store
	}
	b := bridge.New(store, sender, append([]bridge.Option{bridge.WithCapability(capability)}, opts...)...)

	srv := gorpc.NewGoRPCServer()
	if err := service.Register(srv, service.New(b, reg, 200*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Accept(l)
	t.Cleanup(func() {
		l.Close()
		sender.Close()
	})
	return &Server{Addr: l.Addr().String(), Store: store, Registry: reg, Bridge: b}
}
