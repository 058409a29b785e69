package gorpc

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"go.uber.org/zap"
)

var (
	ErrConnect     = fmt.Errorf("fail to connect to the target address")
	ErrInitialized = fmt.Errorf("fail to initilize the connection pool")
	ErrNoServer    = fmt.Errorf("no rpc server")
	ErrPoolClosed  = fmt.Errorf("connection pool is closed")
)

const maxReconnect = 3

func IsRPCServerError(err error) bool {
	var se rpc.ServerError
	return errors.As(err, &se)
}

type RPCClientOption func(*GoRPCClient)

func WithCACert(cert []byte) RPCClientOption {
	return func(gr *GoRPCClient) {
		if gr.tls == nil {
			gr.tls = &tls.Config{}
		}
		if gr.tls.RootCAs == nil {
			gr.tls.RootCAs = x509.NewCertPool()
		}
		gr.tls.RootCAs.AppendCertsFromPEM(cert)
	}
}

func WithClientCert(cert tls.Certificate) RPCClientOption {
	return func(gr *GoRPCClient) {
		if gr.tls == nil {
			gr.tls = &tls.Config{}
		}
		gr.tls.Certificates = append(gr.tls.Certificates, cert)
	}
}

func WithClientDialer(dialer adapter.DialerFunc) RPCClientOption {
	return func(gr *GoRPCClient) {
		gr.dialer = dialer
	}
}

func WithClientTLSConfig(c *tls.Config) RPCClientOption {
	return func(gr *GoRPCClient) {
		gr.tls = c
	}
}

func WithClientLogger(log *zap.Logger) RPCClientOption {
	return func(gr *GoRPCClient) {
		if log != nil {
			gr.log = log
		}
	}
}

func DefaultDialerFunc(address string) adapter.DialerFunc {
	return func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", address, 30*time.Second)
	}
}

func DefaultTLSDialerFunc(address string, c *tls.Config) adapter.DialerFunc {
	return func() (io.ReadWriteCloser, error) {
		return tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second}, "tcp", address, c)
	}
}

// conn is one pooled JSON-RPC client. The mutex is held for as long as a
// caller owns the connection.
type conn struct {
	sync.Mutex
	c   *rpc.Client
	err error
}

func (c *conn) dial(dialer adapter.DialerFunc) error {
	cc, err := dialer()
	if err != nil {
		c.err = err
		return err
	}
	if c.c != nil {
		c.c.Close()
	}
	c.c = jsonrpc.NewClient(cc)
	c.err = nil
	return nil
}

// connPool hands out idle connections first and grows when every
// connection is busy.
type connPool struct {
	mu     sync.RWMutex
	dialer adapter.DialerFunc
	conns  []*conn
	closed bool
	log    *zap.Logger
}

func newConnPool(dialer adapter.DialerFunc, log *zap.Logger) (*connPool, error) {
	cp := &connPool{
		dialer: dialer,
		conns:  make([]*conn, 0, 128),
		log:    log,
	}
	first := &conn{}
	if err := first.dial(dialer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialized, err)
	}
	cp.conns = append(cp.conns, first)
	return cp, nil
}

func (p *connPool) dial() (io.ReadWriteCloser, error) {
	p.mu.RLock()
	d := p.dialer
	p.mu.RUnlock()
	return d()
}

// Get returns a locked connection. Release it with Put.
func (p *connPool) Get() (*conn, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	d := p.dialer
	for _, cn := range p.conns {
		if !cn.TryLock() {
			continue
		}
		if cn.err != nil || cn.c == nil {
			if err := cn.dial(d); err != nil {
				cn.Unlock()
				continue
			}
		}
		p.mu.RUnlock()
		return cn, nil
	}
	p.mu.RUnlock()

	cn := &conn{}
	cn.Lock()
	if err := cn.dial(p.dial); err != nil {
		cn.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cn.c.Close()
		cn.c = nil
		cn.Unlock()
		return nil, ErrPoolClosed
	}
	p.conns = append(p.conns, cn)
	size := len(p.conns)
	p.mu.Unlock()
	p.log.Debug("rpc pool grew", zap.Int("size", size))
	return cn, nil
}

// Put releases cn. A non-nil err marks the connection broken so the next
// Get redials it.
func (p *connPool) Put(cn *conn, err error) {
	if err != nil {
		cn.err = err
		if cn.c != nil {
			cn.c.Close()
			cn.c = nil
		}
	}
	cn.Unlock()
}

func (p *connPool) setServer(dialer adapter.DialerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialer = dialer
}

// Close marks the pool closed and shuts every connection down. A
// connection in use is closed once its holder releases it.
func (p *connPool) Close() error {
	p.mu.Lock()
	p.closed = true
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	var err error
	for _, cn := range conns {
		cn.Lock()
		if cn.c != nil {
			if e := cn.c.Close(); e != nil && !errors.Is(e, rpc.ErrShutdown) {
				err = e
			}
			cn.c = nil
		}
		cn.Unlock()
	}
	return err
}

// GoRPCClient is a pooled JSON-RPC client.
type GoRPCClient struct {
	conn   *connPool
	dialer adapter.DialerFunc
	tls    *tls.Config
	log    *zap.Logger
}

func NewGoRPCClient(address string, opts ...RPCClientOption) (adapter.Client, error) {
	if address == "" {
		return nil, ErrNoServer
	}
	cc := &GoRPCClient{log: zap.NewNop()}
	for _, o := range opts {
		o(cc)
	}
	switch {
	case cc.dialer != nil:
	case cc.tls != nil:
		cc.dialer = DefaultTLSDialerFunc(address, cc.tls)
	default:
		cc.dialer = DefaultDialerFunc(address)
	}
	pool, err := newConnPool(cc.dialer, cc.log)
	if err != nil {
		return nil, err
	}
	cc.conn = pool
	return cc, nil
}

// Call retries on broken connections but never on errors the server
// returned.
func (g *GoRPCClient) Call(serviceMethod string, args any, reply any) error {
	var err error
	for attempt := 0; attempt < maxReconnect; attempt++ {
		var cn *conn
		cn, err = g.conn.Get()
		if err != nil {
			return err
		}
		err = cn.c.Call(serviceMethod, args, reply)
		if err == nil || IsRPCServerError(err) {
			g.conn.Put(cn, nil)
			return err
		}
		// we only need reconnect when the connection is broken.
		g.log.Warn("rpc call failed, reconnecting", zap.String("method", serviceMethod), zap.Error(err))
		g.conn.Put(cn, err)
	}
	return err
}

func (g *GoRPCClient) CallWithConn(conn io.ReadWriteCloser, serviceMethod string, args any, reply any) error {
	// don't use conn pool
	nrpc := jsonrpc.NewClient(conn)
	defer nrpc.Close()
	return nrpc.Call(serviceMethod, args, reply)
}

func (g *GoRPCClient) Close() error {
	return g.conn.Close()
}

func (g *GoRPCClient) SetRPCServer(address string) error {
	if address == "" {
		return ErrNoServer
	}
	if g.tls != nil {
		g.conn.setServer(DefaultTLSDialerFunc(address, g.tls))
	} else {
		g.conn.setServer(DefaultDialerFunc(address))
	}
	return nil
}

func (g *GoRPCClient) SetDialer(dialer adapter.DialerFunc) {
	g.conn.setServer(dialer)
}
