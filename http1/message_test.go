package http1_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/http1"
)

func TestHeaderOrderedCaseInsensitive(t *testing.T) {
	var h http1.Header
	h.Set("Content-Type", "text/plain")
	h.Set("X-Trace", "1")
	h.Set("content-type", "application/json")
	h.Add("Accept", "a")
	h.Add("ACCEPT", "b")

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, "application/json", h.Get("CONTENT-TYPE"))
	assert.Equal(t, "a, b", h.Get("accept"))
	assert.Equal(t, []http1.Field{
		{Key: "Content-Type", Value: "application/json"},
		{Key: "X-Trace", Value: "1"},
		{Key: "Accept", Value: "a, b"},
	}, h.Fields())

	h.Del("x-trace")
	assert.False(t, h.Has("X-Trace"))
	assert.True(t, h.HasToken("Accept", "B"))
}

func TestResponseBytes(t *testing.T) {
	resp := http1.NewTextResponse(http1.StatusNotFound, "nope")
	resp.Header.Set("Connection", "close")
	resp.SetCookie("sid", "x")

	assert.Equal(t,
		"HTTP/1.1 404 Not Found\r\n"+
			"Content-Type: text/plain; charset=utf-8\r\n"+
			"Connection: close\r\n"+
			"Set-Cookie: sid=x\r\n"+
			"Content-Length: 4\r\n\r\nnope",
		string(resp.Bytes()))

	interim := http1.NewResponse(http1.StatusContinue)
	assert.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", string(interim.Bytes()))
}

func TestRequestBytesParsesBack(t *testing.T) {
	req := http1.NewRequest("POST", "/submit?x=1")
	req.Header.Set("Host", "h")
	req.Cookies = []http1.Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}
	req.Body = []byte("payload")

	got, err := http1.ParseRequest(req.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "/submit", got.URI)
	assert.Equal(t, "x=1", got.Query)
	assert.Equal(t, "payload", string(got.Body))
	assert.Equal(t, req.Cookies, got.Cookies)
	assert.Equal(t, "7", got.Header.Get("Content-Length"))
}
