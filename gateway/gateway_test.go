package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/bridge"
	"github.com/MeteorsLiu/kvbridge/dispatch"
	"github.com/MeteorsLiu/kvbridge/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, opts ...bridge.Option) (*gin.Engine, *memory.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	reg := dispatch.NewRegistry()
	b := bridge.New(store, dispatch.Direct{Registry: reg}, opts...)
	r := gin.New()
	Register(r, b, reg, 100*time.Millisecond)
	return r, store
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, adapter.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(CallbackHeader, "cb-"+method)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env adapter.Envelope
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestGatewayScenario(t *testing.T) {
	r, store := newRouter(t)

	w, env := do(t, r, http.MethodPut, "/storage/items/a", "1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cb-PUT", w.Header().Get(CallbackHeader))
	assert.Equal(t, adapter.Envelope{Result: adapter.Success, Data: adapter.Undefined}, env)
	do(t, r, http.MethodPut, "/storage/items/b", "2")

	_, env = do(t, r, http.MethodGet, "/storage/length", "")
	n, _ := env.Count()
	assert.Equal(t, 2, n)

	_, env = do(t, r, http.MethodGet, "/storage/keys", "")
	keys, _ := env.Keys()
	assert.Equal(t, []string{"a", "b"}, keys)

	_, env = do(t, r, http.MethodDelete, "/storage/items/a", "")
	assert.True(t, env.OK())

	_, env = do(t, r, http.MethodGet, "/storage/items/a", "")
	assert.Equal(t, adapter.Envelope{Result: adapter.Failed, Data: adapter.Undefined}, env)

	_, env = do(t, r, http.MethodGet, "/storage/items/b", "")
	assert.Equal(t, adapter.Envelope{Result: adapter.Success, Data: "2"}, env)
	assert.Equal(t, 1, store.Length())
}

func TestGatewayInvalidParams(t *testing.T) {
	r, _ := newRouter(t)

	_, env := do(t, r, http.MethodPut, "/storage/items/k", "")
	assert.Equal(t, adapter.Envelope{Result: adapter.InvalidParam, Data: adapter.Undefined}, env)

	_, env = do(t, r, http.MethodGet, "/storage/items/", "")
	assert.Equal(t, adapter.Envelope{Result: adapter.Failed, Data: adapter.InvalidParamData}, env)
}

func TestGatewayUnavailable(t *testing.T) {
	absent := adapter.CapabilityFunc(func() bool { return false })
	r, _ := newRouter(t, bridge.WithCapability(absent))

	w, _ := do(t, r, http.MethodGet, "/storage/length", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

func TestSetItemBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.New()
	reg := dispatch.NewRegistry()
	b := bridge.New(store, dispatch.Direct{Registry: reg})
	r := gin.New()
	Register(r, b, reg, 100*time.Millisecond, WithMaxBodyBytes(4))

	w, _ := do(t, r, http.MethodPut, "/storage/items/k", "12345")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, store.Length())

	w, env := do(t, r, http.MethodPut, "/storage/items/k", "1234")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, adapter.Success, env.Result)
	v, found := store.GetItem("k")
	assert.True(t, found)
	assert.Equal(t, "1234", v)
}
