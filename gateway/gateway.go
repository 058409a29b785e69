// Package gateway serves the storage commands over HTTP.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MeteorsLiu/kvbridge/bridge"
	"github.com/MeteorsLiu/kvbridge/dispatch"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CallbackHeader = "X-Callback-ID"

	DefaultMaxBodyBytes int64 = 1 << 20
)

type Gateway struct {
	bridge       *bridge.Storage
	reg          *dispatch.Registry
	timeout      time.Duration
	maxBodyBytes int64
}

type Option func(*Gateway)

// WithMaxBodyBytes caps the size of a SetItem request body.
func WithMaxBodyBytes(n int64) Option {
	return func(gg *Gateway) {
		if n > 0 {
			gg.maxBodyBytes = n
		}
	}
}

// Register mounts the storage routes on r:
//
//	PUT    /storage/items/:key   body is the value
//	GET    /storage/items/:key
//	DELETE /storage/items/:key
//	GET    /storage/length
//	GET    /storage/keys
func Register(r gin.IRoutes, b *bridge.Storage, reg *dispatch.Registry, timeout time.Duration, opts ...Option) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	gg := &Gateway{bridge: b, reg: reg, timeout: timeout, maxBodyBytes: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(gg)
	}
	r.PUT("/storage/items/*key", gg.SetItem)
	r.GET("/storage/items/*key", gg.GetItem)
	r.DELETE("/storage/items/*key", gg.RemoveItem)
	r.GET("/storage/length", gg.Length)
	r.GET("/storage/keys", gg.GetAllKeys)
	return gg
}

// key strips the leading slash of the catch-all parameter, so
// /storage/items/ yields the empty key.
func key(g *gin.Context) string {
	k := g.Param("key")
	if len(k) > 0 && k[0] == '/' {
		k = k[1:]
	}
	return k
}

func (gg *Gateway) abortContext(g *gin.Context, status int, reason string) {
	g.AbortWithStatusJSON(status, gin.H{
		"status": "error",
		"err":    reason,
	})
}

func (gg *Gateway) serve(g *gin.Context, invoke func(id string)) {
	id := g.GetHeader(CallbackHeader)
	if id == "" {
		id = uuid.NewString()
	}
	g.Header(CallbackHeader, id)

	ctx, cancel := context.WithTimeout(g.Request.Context(), gg.timeout)
	defer cancel()
	env, err := gg.reg.Await(ctx, id, invoke)
	switch {
	case errors.Is(err, dispatch.ErrDuplicate):
		gg.abortContext(g, http.StatusConflict, err.Error())
		return
	case err != nil:
		gg.abortContext(g, http.StatusGatewayTimeout, err.Error())
		return
	}
	g.JSON(http.StatusOK, env)
}

func (gg *Gateway) SetItem(g *gin.Context) {
	b, err := io.ReadAll(http.MaxBytesReader(g.Writer, g.Request.Body, gg.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			gg.abortContext(g, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		gg.abortContext(g, http.StatusBadRequest, "cannot get the data: "+err.Error())
		return
	}
	k, v := key(g), string(b)
	gg.serve(g, func(id string) {
		gg.bridge.SetItem(k, v, id)
	})
}

func (gg *Gateway) GetItem(g *gin.Context) {
	k := key(g)
	gg.serve(g, func(id string) {
		gg.bridge.GetItem(k, id)
	})
}

func (gg *Gateway) RemoveItem(g *gin.Context) {
	k := key(g)
	gg.serve(g, func(id string) {
		gg.bridge.RemoveItem(k, id)
	})
}

func (gg *Gateway) Length(g *gin.Context) {
	gg.serve(g, func(id string) {
		gg.bridge.Length(id)
	})
}

func (gg *Gateway) GetAllKeys(g *gin.Context) {
	gg.serve(g, func(id string) {
		gg.bridge.GetAllKeys(id)
	})
}
