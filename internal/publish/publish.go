// Package publish uploads exported images to image hosting services.
package publish

import (
	"context"
	"fmt"
	"net/http"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/httpx"
)

// Image is a local image to upload.
type Image struct {
	Path string
	// Name is the label shown for the image. For comparisons it is the
	// source file name.
	Name string
}

// Group is a named set of images shown side by side.
type Group struct {
	Name   string
	Images []Image
}

// Album is everything published in one run.
type Album struct {
	Name        string
	Description string
	Groups      []Group
}

// Images returns every image of the album in group order.
func (a Album) Images() []Image {
	var out []Image
	for _, g := range a.Groups {
		out = append(out, g.Images...)
	}
	return out
}

// Progress is called after each request with the number of completed and
// total requests.
type Progress func(done, total int)

// Publisher uploads an album and returns its shareable URL.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, album Album, progress Progress) (string, error)
}

// Mode selects how slow.pics presents an album.
type Mode int

const (
	// ModeComparison shows groups side by side.
	ModeComparison Mode = iota
	// ModeCollection shows a flat list of images.
	ModeCollection
)

// New returns the publisher configured by cfg.
func New(cfg config.PublishConfig, mode Mode) (Publisher, error) {
	client, err := httpx.NewClient(cfg.Proxy)
	if err != nil {
		return nil, ferrors.NewConfigError("invalid upload proxy", err)
	}

	switch cfg.Provider {
	case config.ProviderSlowpics, "":
		s := NewSlowpics(client, mode)
		s.Public = cfg.Public
		s.Limited = cfg.Limited
		s.Expiration = cfg.Expiration
		return s, nil
	case config.ProviderCatbox:
		c := NewCatbox(client)
		c.UserHash = cfg.CatboxToken
		return c, nil
	case config.ProviderImgur:
		i := NewImgur(client)
		i.ClientID = cfg.ImgurClientID
		return i, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrInvalidProvider, cfg.Provider)
	}
}

// do sends req and fails on transport errors and non-2xx statuses.
// On success the caller owns the response body.
func do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, ferrors.NewCancelledError()
		}
		return nil, ferrors.NewUploadError(fmt.Sprintf("%s %s", req.Method, req.URL), err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, ferrors.NewUploadError("unexpected response", err)
	}
	return resp, nil
}

func report(progress Progress, done, total int) {
	if progress != nil {
		progress(done, total)
	}
}
