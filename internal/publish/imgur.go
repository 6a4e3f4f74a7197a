package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/httpx"
	"github.com/five82/framecomp/internal/logging"
)

const (
	// ImgurWebURL is the page whose script bundle carries the public client id.
	ImgurWebURL = "https://imgur.com/"
	// ImgurAPIURL is the imgur API base URL.
	ImgurAPIURL = "https://api.imgur.com/3"
)

var clientIDPattern = regexp.MustCompile(`apiClientId:"(?P<clientId>[a-zA-Z0-9]+)"`)

// Imgur uploads images anonymously to imgur and groups them in an album.
type Imgur struct {
	WebURL string
	APIURL string
	// ClientID is discovered from the web bundle when empty.
	ClientID string
	// AlbumURL prefixes the album id in the returned URL.
	AlbumURL string

	client *http.Client
}

// NewImgur creates an imgur publisher.
func NewImgur(client *http.Client) *Imgur {
	return &Imgur{
		WebURL:   ImgurWebURL,
		APIURL:   ImgurAPIURL,
		AlbumURL: "https://imgur.com/a/",
		client:   client,
	}
}

func (i *Imgur) Name() string { return "imgur" }

type imgurResponse struct {
	Data struct {
		ID         string `json:"id"`
		DeleteHash string `json:"deletehash"`
	} `json:"data"`
}

// Publish uploads every image, then creates an album from their delete hashes.
func (i *Imgur) Publish(ctx context.Context, album Album, progress Progress) (string, error) {
	clientID := i.ClientID
	if clientID == "" {
		id, err := i.discoverClientID(ctx)
		if err != nil {
			return "", err
		}
		clientID = id
	}

	images := album.Images()
	total := len(images) + 1

	var hashes []string
	for n, img := range images {
		if err := ctx.Err(); err != nil {
			return "", ferrors.NewCancelledError()
		}
		fields := []httpx.Field{{Name: "type", Value: "image"}}
		res, err := i.post(ctx, "/image", clientID, fields, &httpx.File{Field: "image", Path: img.Path, ContentType: "image/png"})
		if err != nil {
			return "", err
		}
		hashes = append(hashes, res.Data.DeleteHash)
		report(progress, n+1, total)
	}

	fields := []httpx.Field{
		{Name: "title", Value: album.Name},
		{Name: "description", Value: album.Description},
	}
	for n, h := range hashes {
		fields = append(fields, httpx.Field{Name: "deletehashes[" + strconv.Itoa(n) + "]", Value: h})
	}
	res, err := i.post(ctx, "/album", clientID, fields, nil)
	if err != nil {
		return "", err
	}
	report(progress, total, total)
	return i.AlbumURL + res.Data.ID, nil
}

// discoverClientID loads the imgur web page, finds its main script bundle
// and extracts the public API client id from it.
func (i *Imgur) discoverClientID(ctx context.Context) (string, error) {
	page, err := i.fetch(ctx, i.WebURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", ferrors.NewUploadError("cannot parse imgur page", err)
	}

	var bundles []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.Contains(src, "/main.") && strings.HasSuffix(src, ".js") {
			bundles = append(bundles, src)
		}
	})
	if len(bundles) == 0 {
		return "", ferrors.NewUploadError("unable to find the imgur script bundle", nil)
	}

	base, err := url.Parse(i.WebURL)
	if err != nil {
		return "", ferrors.NewUploadError("invalid imgur url", err)
	}
	for _, src := range bundles {
		ref, err := url.Parse(src)
		if err != nil {
			continue
		}
		script, err := i.fetch(ctx, base.ResolveReference(ref).String())
		if err != nil {
			return "", err
		}
		if m := clientIDPattern.FindSubmatch(script); m != nil {
			id := string(m[clientIDPattern.SubexpIndex("clientId")])
			logging.Debug("imgur client id discovered", "bundle", src)
			return id, nil
		}
	}
	return "", ferrors.NewUploadError("unable to find the imgur client id", nil)
}

func (i *Imgur) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ferrors.NewUploadError("invalid imgur url", err)
	}
	resp, err := do(i.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferrors.NewUploadError("cannot read "+target, err)
	}
	return data, nil
}

func (i *Imgur) post(ctx context.Context, path, clientID string, fields []httpx.Field, file *httpx.File) (*imgurResponse, error) {
	body, contentType, err := httpx.Multipart(fields, file)
	if err != nil {
		return nil, ferrors.NewUploadError("cannot encode form", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.APIURL+path, body)
	if err != nil {
		return nil, ferrors.NewUploadError("invalid imgur url", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Client-ID "+clientID)

	resp, err := do(i.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res imgurResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, ferrors.NewUploadError(fmt.Sprintf("invalid imgur response for %s", path), err)
	}
	return &res, nil
}
