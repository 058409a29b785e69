package adapter

import (
	"io"
	"net"
	"net/rpc"
)

// DialerFunc opens a fresh connection to the command endpoint.
type DialerFunc func() (io.ReadWriteCloser, error)

// Client carries storage commands to a remote bridge.
type Client interface {
	SetDialer(dialer DialerFunc)
	SetRPCServer(address string) error
	CallWithConn(conn io.ReadWriteCloser, serviceMethod string, args any, reply any) error
	Call(serviceMethod string, args any, reply any) error
	io.Closer
}

// Server accepts storage commands and hands them to registered receivers.
type Server interface {
	AddCert(cert []byte)
	// Accept blocks until lis is closed and returns the accept error.
	Accept(lis net.Listener) error
	Register(rcvr any) error
	RegisterName(name string, rcvr any) error
	ServeCodec(codec rpc.ServerCodec)
	ServeConn(conn io.ReadWriteCloser)
	ServeRequest(codec rpc.ServerCodec) error
}
