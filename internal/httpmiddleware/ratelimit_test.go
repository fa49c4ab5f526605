package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTakeRefillsOverTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	ok, _ := l.take("a")
	assert.True(t, ok)
	ok, _ = l.take("a")
	assert.True(t, ok)
	ok, wait := l.take("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.take("b")
	assert.True(t, ok, "buckets are per key")

	now = now.Add(500 * time.Millisecond)
	ok, wait = l.take("a")
	assert.False(t, ok, "half a token is not enough")
	assert.Equal(t, 500*time.Millisecond, wait)

	now = now.Add(500 * time.Millisecond)
	ok, _ = l.take("a")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		ok, _ = l.take("a")
		assert.True(t, ok)
	}
	ok, _ = l.take("a")
	assert.False(t, ok, "refill is capped at the burst size")
}

func TestMiddlewareByKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1)
	r := gin.New()
	r.Use(l.GinMiddlewareBy(func(c *gin.Context) string { return c.GetHeader("X-Actor") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Actor", actor)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	assert.Equal(t, http.StatusOK, call("1").Code)
	refused := call("1")
	assert.Equal(t, http.StatusTooManyRequests, refused.Code)
	assert.Equal(t, "60", refused.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("2").Code)
	assert.Equal(t, http.StatusOK, call("").Code, "falls back to client ip")
}
