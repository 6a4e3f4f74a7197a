package httpx

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientProxy(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080")
	require.NoError(t, err)

	tr, ok := c.Transport.(*Transport)
	require.True(t, ok, "transport is %T", c.Transport)

	req, _ := http.NewRequest(http.MethodGet, "https://slow.pics/comparison", nil)
	proxy, err := tr.Base.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", proxy.Host)
	assert.NotNil(t, c.Jar)
}

func TestNewClientInvalidProxy(t *testing.T) {
	_, err := NewClient("://bad")
	assert.Error(t, err)
}

func TestTransportSetsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, err := NewClient("")
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, UserAgent, ua)
}

func TestTransportRetriesOnlyGET(t *testing.T) {
	var attempts atomic.Int32
	base := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			attempts.Add(1)
			return nil, errors.New("connection refused")
		},
	}
	c := &http.Client{Transport: &Transport{Base: base, RetryMax: 2}}

	_, err := c.Get("http://framecomp.test/comparison")
	assert.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load(), "GET is retried twice")

	attempts.Store(0)
	_, err = c.Post("http://framecomp.test/upload", "text/plain", strings.NewReader("x"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "POST is never retried")
}

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			return
		}
		http.Error(w, "collection limit reached", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ok")
	require.NoError(t, err)
	assert.NoError(t, CheckStatus(resp))
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/upload", "text/plain", nil)
	require.NoError(t, err)
	err = CheckStatus(resp)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, http.MethodPost, se.Method)
	assert.Contains(t, se.Error(), "collection limit reached")
}

func TestMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0644))

	body, contentType, err := Multipart(
		[]Field{{"collectionName", "Test"}, {"public", "false"}},
		&File{Field: "file", Path: path, ContentType: "image/png"},
	)
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.Len(t, params["boundary"], 36)

	r := multipart.NewReader(body, params["boundary"])
	form, err := r.ReadForm(1 << 20)
	require.NoError(t, err)

	assert.Equal(t, []string{"Test"}, form.Value["collectionName"])
	require.Len(t, form.File["file"], 1)
	fh := form.File["file"][0]
	assert.Equal(t, "shot.png", fh.Filename)
	assert.Equal(t, "image/png", fh.Header.Get("Content-Type"))

	f, err := fh.Open()
	require.NoError(t, err)
	defer f.Close()
	data, _ := io.ReadAll(f)
	assert.Equal(t, "png-bytes", string(data))
}
