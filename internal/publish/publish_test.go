package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/httpx"
)

func writeImages(t *testing.T, names ...string) []Image {
	t.Helper()
	dir := t.TempDir()
	var out []Image
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("png:"+n), 0644))
		out = append(out, Image{Path: p, Name: n})
	}
	return out
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	c, err := httpx.NewClient("")
	require.NoError(t, err)
	return c
}

// fakeSlowpics records what a slow.pics client sends.
type fakeSlowpics struct {
	mu       sync.Mutex
	fields   map[string]string
	uploads  map[string]string // imageUuid -> file name
	order    []string
	xsrfSeen []string
	failOn   string
}

func (f *fakeSlowpics) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	page := func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "tok123", Path: "/"})
	}
	mux.HandleFunc("/comparison", page)
	mux.HandleFunc("/collection", page)

	create := func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f.mu.Lock()
		f.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			f.fields[k] = v[0]
		}
		f.mu.Unlock()

		var images [][]string
		if r.URL.Path == "/upload/collection" {
			var ids []string
			for i := 0; ; i++ {
				if _, ok := r.MultipartForm.Value[fmt.Sprintf("imageNames[%d]", i)]; !ok {
					break
				}
				ids = append(ids, fmt.Sprintf("slot-0-%d", i))
			}
			images = [][]string{ids}
		} else {
			for i := 0; ; i++ {
				if _, ok := r.MultipartForm.Value[fmt.Sprintf("comparisons[%d].name", i)]; !ok {
					break
				}
				var ids []string
				for j := 0; ; j++ {
					if _, ok := r.MultipartForm.Value[fmt.Sprintf("comparisons[%d].imageNames[%d]", i, j)]; !ok {
						break
					}
					ids = append(ids, fmt.Sprintf("slot-%d-%d", i, j))
				}
				images = append(images, ids)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"collectionUuid": "coll-uuid",
			"key":            "AbCd1234",
			"images":         images,
		})
	}
	mux.HandleFunc("/upload/comparison", create)
	mux.HandleFunc("/upload/collection", create)

	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		id := r.FormValue("imageUuid")
		if id == f.failOn {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, fh, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "coll-uuid", r.FormValue("collectionUuid"))
		f.mu.Lock()
		f.uploads[id] = fh.Filename
		f.order = append(f.order, id)
		f.mu.Unlock()
	})
	return mux
}

func (f *fakeSlowpics) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.xsrfSeen = append(f.xsrfSeen, r.Header.Get("X-XSRF-TOKEN"))
}

func TestSlowpicsComparison(t *testing.T) {
	fake := &fakeSlowpics{uploads: map[string]string{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	darkA := writeImages(t, "d-a.png", "d-b.png")
	lightA := writeImages(t, "l-a.png", "l-b.png")
	darkA[0].Name, darkA[1].Name = "a.mkv", "b.mkv"
	lightA[0].Name, lightA[1].Name = "a.mkv", "b.mkv"
	album := Album{Name: "Test comparison", Groups: []Group{
		{Name: "Dark scene", Images: darkA},
		{Name: "Light scene", Images: lightA},
	}}

	expiration := 7
	s := NewSlowpics(newClient(t), ModeComparison)
	s.BaseURL = srv.URL
	s.Expiration = &expiration

	var last [2]int
	url, err := s.Publish(context.Background(), album, func(done, total int) { last = [2]int{done, total} })
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/c/AbCd1234", url)
	assert.Equal(t, [2]int{5, 5}, last)

	assert.Equal(t, "Test comparison", fake.fields["collectionName"])
	assert.Equal(t, "false", fake.fields["public"])
	assert.Equal(t, "true", fake.fields["optimize-images"])
	assert.Equal(t, "false", fake.fields["hentai"])
	assert.Equal(t, "7", fake.fields["removeAfter"])
	assert.Len(t, fake.fields["browserId"], 36)
	assert.Equal(t, "Dark scene", fake.fields["comparisons[0].name"])
	assert.Equal(t, "Light scene", fake.fields["comparisons[1].name"])
	assert.Equal(t, "b.mkv", fake.fields["comparisons[1].imageNames[1]"])

	assert.Equal(t, []string{"slot-0-0", "slot-0-1", "slot-1-0", "slot-1-1"}, fake.order)
	assert.Equal(t, "l-b.png", fake.uploads["slot-1-1"])
	for _, tok := range fake.xsrfSeen {
		assert.Equal(t, "tok123", tok)
	}
}

func TestSlowpicsCollection(t *testing.T) {
	fake := &fakeSlowpics{uploads: map[string]string{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s := NewSlowpics(newClient(t), ModeCollection)
	s.BaseURL = srv.URL
	s.Public = true

	images := writeImages(t, "1.png", "2.png", "3.png")
	url, err := s.Publish(context.Background(), Album{Name: "Shots", Groups: []Group{{Images: images}}}, nil)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/c/AbCd1234", url)
	assert.Equal(t, "true", fake.fields["public"])
	assert.Equal(t, "2.png", fake.fields["imageNames[1]"])
	_, hasExpiration := fake.fields["removeAfter"]
	assert.False(t, hasExpiration)
	assert.Equal(t, []string{"slot-0-0", "slot-0-1", "slot-0-2"}, fake.order)
}

func TestSlowpicsUploadFailureAborts(t *testing.T) {
	fake := &fakeSlowpics{uploads: map[string]string{}, failOn: "slot-0-1"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s := NewSlowpics(newClient(t), ModeCollection)
	s.BaseURL = srv.URL

	images := writeImages(t, "1.png", "2.png", "3.png")
	_, err := s.Publish(context.Background(), Album{Groups: []Group{{Images: images}}}, nil)
	require.Error(t, err)
	assert.True(t, ferrors.IsKind(err, ferrors.KindUpload))

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	// Nothing after the failed slot is attempted.
	assert.Equal(t, []string{"slot-0-0"}, fake.order)
}

func TestCatbox(t *testing.T) {
	var mu sync.Mutex
	var albumFields map[string][]string
	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		mu.Lock()
		defer mu.Unlock()
		switch r.FormValue("reqtype") {
		case "fileupload":
			uploads++
			assert.Equal(t, "hash", r.FormValue("userhash"))
			_, fh, err := r.FormFile("fileToUpload")
			require.NoError(t, err)
			fmt.Fprintf(w, "https://files.catbox.moe/x%d%s\n", uploads, filepath.Ext(fh.Filename))
		case "createalbum":
			albumFields = r.MultipartForm.Value
			fmt.Fprint(w, "https://catbox.moe/c/abc123")
		default:
			http.Error(w, "bad reqtype", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewCatbox(newClient(t))
	c.APIURL = srv.URL
	c.UserHash = "hash"

	url, err := c.Publish(context.Background(), Album{Name: "Shots", Description: "desc", Groups: []Group{{Images: writeImages(t, "1.png", "2.png")}}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://catbox.moe/c/abc123", url)
	assert.Equal(t, []string{"x1.png x2.png"}, albumFields["files"])
	assert.Equal(t, []string{"Shots"}, albumFields["title"])
	assert.Equal(t, []string{"hash"}, albumFields["userhash"])
}

func TestImgurDiscoversClientID(t *testing.T) {
	var mu sync.Mutex
	var auth []string
	var albumHashes []string

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><script src="/desktop-assets/js/vendor.1.js"></script><script src="/desktop-assets/js/main.534665f6.js"></script></head></html>`)
	})
	mux.HandleFunc("/desktop-assets/js/main.534665f6.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `var config={apiUrl:"x",apiClientId:"abc123DEF"};`)
	})
	mux.HandleFunc("/3/image", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		n := len(auth)
		mu.Unlock()
		assert.Equal(t, "image", r.FormValue("type"))
		fmt.Fprintf(w, `{"data":{"id":"img%d","deletehash":"del%d"},"success":true}`, n, n)
	})
	mux.HandleFunc("/3/album", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		albumHashes = []string{r.FormValue("deletehashes[0]"), r.FormValue("deletehashes[1]")}
		mu.Unlock()
		fmt.Fprint(w, `{"data":{"id":"Alb42","deletehash":"x"},"success":true}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	i := NewImgur(newClient(t))
	i.WebURL = srv.URL + "/"
	i.APIURL = srv.URL + "/3"

	url, err := i.Publish(context.Background(), Album{Groups: []Group{{Images: writeImages(t, "1.png", "2.png")}}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://imgur.com/a/Alb42", url)
	assert.Equal(t, []string{"del1", "del2"}, albumHashes)
	for _, a := range auth {
		assert.Equal(t, "Client-ID abc123DEF", a)
	}
}

func TestImgurMissingClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	}))
	defer srv.Close()

	i := NewImgur(newClient(t))
	i.WebURL = srv.URL + "/"
	_, err := i.Publish(context.Background(), Album{Groups: []Group{{Images: writeImages(t, "1.png")}}}, nil)
	assert.True(t, ferrors.IsKind(err, ferrors.KindUpload), "err = %v", err)
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider config.Provider
		want     string
	}{
		{config.ProviderSlowpics, "slowpics"},
		{config.ProviderCatbox, "catbox"},
		{config.ProviderImgur, "imgur"},
	}
	for _, tt := range tests {
		p, err := New(config.PublishConfig{Provider: tt.provider, CatboxToken: "t"}, ModeCollection)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Name())
	}

	_, err := New(config.PublishConfig{Provider: "flickr"}, ModeCollection)
	assert.ErrorIs(t, err, config.ErrInvalidProvider)

	_, err = New(config.PublishConfig{Provider: config.ProviderCatbox, Proxy: "://bad"}, ModeCollection)
	assert.True(t, ferrors.IsKind(err, ferrors.KindConfig))
}

func TestPublishCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCatbox(newClient(t))
	c.APIURL = srv.URL
	_, err := c.Publish(ctx, Album{Groups: []Group{{Images: writeImages(t, "1.png")}}}, nil)
	assert.True(t, ferrors.IsCancelled(err), "err = %v", err)
}
