package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/httpx"
	"github.com/five82/framecomp/internal/logging"
)

// SlowpicsURL is the slow.pics base URL.
const SlowpicsURL = "https://slow.pics"

const xsrfCookie = "XSRF-TOKEN"

// Slowpics publishes comparisons and collections to slow.pics.
type Slowpics struct {
	BaseURL    string
	Mode       Mode
	Public     bool
	Limited    bool
	Expiration *int

	client *http.Client
}

// NewSlowpics creates a slow.pics publisher.
func NewSlowpics(client *http.Client, mode Mode) *Slowpics {
	return &Slowpics{BaseURL: SlowpicsURL, Mode: mode, client: client}
}

func (s *Slowpics) Name() string { return "slowpics" }

// slowpicsCollection is the response to a collection creation request.
type slowpicsCollection struct {
	CollectionUUID string     `json:"collectionUuid"`
	Key            string     `json:"key"`
	Images         [][]string `json:"images"`
}

// Publish creates the collection, declaring every image slot, then uploads
// each image to its slot.
func (s *Slowpics) Publish(ctx context.Context, album Album, progress Progress) (string, error) {
	page, create := "/comparison", "/upload/comparison"
	if s.Mode == ModeCollection {
		page, create = "/collection", "/upload/collection"
	}

	images := album.Images()
	total := len(images) + 1
	browserID := uuid.NewString()
	log := logging.Global().WithComponent("slowpics")

	// The first page load sets the XSRF cookie.
	if err := s.get(ctx, page); err != nil {
		return "", err
	}

	fields := s.collectionFields(album, browserID)
	resp, err := s.post(ctx, create, page, fields, nil)
	if err != nil {
		return "", err
	}
	var coll slowpicsCollection
	err = json.NewDecoder(resp.Body).Decode(&coll)
	_ = resp.Body.Close()
	if err != nil {
		return "", ferrors.NewUploadError("invalid slow.pics response", err)
	}
	log.Debug("collection created", "key", coll.Key, "uuid", coll.CollectionUUID)
	report(progress, 1, total)

	slots, err := s.slots(album, coll)
	if err != nil {
		return "", err
	}

	for i, slot := range slots {
		if err := ctx.Err(); err != nil {
			return "", ferrors.NewCancelledError()
		}
		fields := []httpx.Field{
			{Name: "collectionUuid", Value: coll.CollectionUUID},
			{Name: "imageUuid", Value: slot.id},
			{Name: "browserId", Value: browserID},
		}
		file := &httpx.File{Field: "file", Path: slot.image.Path, ContentType: "image/png"}
		resp, err := s.post(ctx, "/upload/image", page, fields, file)
		if err != nil {
			return "", err
		}
		_ = resp.Body.Close()
		report(progress, i+2, total)
	}

	return s.BaseURL + "/c/" + coll.Key, nil
}

func (s *Slowpics) collectionFields(album Album, browserID string) []httpx.Field {
	fields := []httpx.Field{
		{Name: "collectionName", Value: album.Name},
		{Name: "public", Value: strconv.FormatBool(s.Public)},
		{Name: "optimize-images", Value: "true"},
		{Name: "hentai", Value: strconv.FormatBool(s.Limited)},
		{Name: "browserId", Value: browserID},
	}
	if s.Expiration != nil {
		fields = append(fields, httpx.Field{Name: "removeAfter", Value: strconv.Itoa(*s.Expiration)})
	}

	if s.Mode == ModeCollection {
		for i, img := range album.Images() {
			fields = append(fields, httpx.Field{Name: fmt.Sprintf("imageNames[%d]", i), Value: img.Name})
		}
		return fields
	}

	for i, g := range album.Groups {
		fields = append(fields, httpx.Field{Name: fmt.Sprintf("comparisons[%d].name", i), Value: g.Name})
		for j, img := range g.Images {
			fields = append(fields, httpx.Field{Name: fmt.Sprintf("comparisons[%d].imageNames[%d]", i, j), Value: img.Name})
		}
	}
	return fields
}

type slot struct {
	id    string
	image Image
}

// slots pairs the image ids returned by slow.pics with the local images.
func (s *Slowpics) slots(album Album, coll slowpicsCollection) ([]slot, error) {
	var out []slot
	if s.Mode == ModeCollection {
		images := album.Images()
		if len(coll.Images) != 1 || len(coll.Images[0]) != len(images) {
			return nil, ferrors.NewUploadError(fmt.Sprintf("slow.pics returned %v image slots for %d images", coll.Images, len(images)), nil)
		}
		for i, id := range coll.Images[0] {
			out = append(out, slot{id: id, image: images[i]})
		}
		return out, nil
	}

	if len(coll.Images) != len(album.Groups) {
		return nil, ferrors.NewUploadError(fmt.Sprintf("slow.pics returned %d comparisons, expected %d", len(coll.Images), len(album.Groups)), nil)
	}
	for i, ids := range coll.Images {
		g := album.Groups[i]
		if len(ids) != len(g.Images) {
			return nil, ferrors.NewUploadError(fmt.Sprintf("slow.pics returned %d slots for %q, expected %d", len(ids), g.Name, len(g.Images)), nil)
		}
		for j, id := range ids {
			out = append(out, slot{id: id, image: g.Images[j]})
		}
	}
	return out, nil
}

func (s *Slowpics) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return ferrors.NewUploadError("invalid slow.pics url", err)
	}
	resp, err := do(s.client, req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (s *Slowpics) post(ctx context.Context, path, referer string, fields []httpx.Field, file *httpx.File) (*http.Response, error) {
	body, contentType, err := httpx.Multipart(fields, file)
	if err != nil {
		return nil, ferrors.NewUploadError("cannot encode form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, body)
	if err != nil {
		return nil, ferrors.NewUploadError("invalid slow.pics url", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Access-Control-Allow-Origin", "*")
	req.Header.Set("Origin", strings.TrimSuffix(s.BaseURL, "/")+"/")
	req.Header.Set("Referer", s.BaseURL+referer)
	if token := s.xsrfToken(); token != "" {
		req.Header.Set("X-XSRF-TOKEN", token)
	}
	return do(s.client, req)
}

func (s *Slowpics) xsrfToken() string {
	if s.client.Jar == nil {
		return ""
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == xsrfCookie {
			return c.Value
		}
	}
	return ""
}
