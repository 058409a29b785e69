package gorpc

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"go.uber.org/zap"
)

type RPCServerOption func(*GoRPCServer)

func WithClientCA(cert []byte) RPCServerOption {
	return func(gr *GoRPCServer) {
		if gr.tls == nil {
			gr.tls = &tls.Config{}
		}
		if gr.tls.ClientCAs == nil {
			gr.tls.ClientCAs = x509.NewCertPool()
			gr.tls.ClientAuth = tls.RequireAndVerifyClientCert
		}
		gr.tls.ClientCAs.AppendCertsFromPEM(cert)
	}
}

func WithServerCert(cert tls.Certificate) RPCServerOption {
	return func(gr *GoRPCServer) {
		if gr.tls == nil {
			gr.tls = &tls.Config{}
		}
		gr.tls.Certificates = append(gr.tls.Certificates, cert)
	}
}

func WithTLSConfig(c *tls.Config) RPCServerOption {
	return func(gr *GoRPCServer) {
		gr.tls = c
	}
}

func WithServerLogger(log *zap.Logger) RPCServerOption {
	return func(gr *GoRPCServer) {
		if log != nil {
			gr.log = log
		}
	}
}

// GoRPCServer serves JSON-RPC over plain TCP or TLS.
type GoRPCServer struct {
	*rpc.Server
	tls *tls.Config
	log *zap.Logger
}

func NewGoRPCServer(opts ...RPCServerOption) adapter.Server {
	s := &GoRPCServer{Server: rpc.NewServer(), log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}

	return s
}

func (s *GoRPCServer) Accept(l net.Listener) error {
	if s.tls != nil {
		l = tls.NewListener(l, s.tls)
	}
	s.log.Info("rpc server listening", zap.String("addr", l.Addr().String()), zap.Bool("tls", s.tls != nil))
	for {
		conn, err := l.Accept()
		if err != nil {
			s.log.Info("rpc server stopped accepting", zap.Error(err))
			return err
		}
		go s.ServeConn(conn)
	}
}

func (s *GoRPCServer) ServeConn(conn io.ReadWriteCloser) {
	s.Server.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// AddCert trusts another client CA. It is a no-op without mTLS.
func (s *GoRPCServer) AddCert(cert []byte) {
	if s.tls == nil || s.tls.ClientCAs == nil {
		return
	}
	// lazily
	s.tls.ClientCAs.AppendCertsFromPEM(cert)
}
