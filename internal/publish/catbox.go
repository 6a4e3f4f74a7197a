package publish

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/httpx"
)

// CatboxURL is the catbox API endpoint.
const CatboxURL = "https://catbox.moe/user/api.php"

// Catbox uploads images to catbox.moe and groups them in an album.
type Catbox struct {
	APIURL string
	// UserHash attaches uploads to a catbox account when set.
	UserHash string

	client *http.Client
}

// NewCatbox creates a catbox publisher.
func NewCatbox(client *http.Client) *Catbox {
	return &Catbox{APIURL: CatboxURL, client: client}
}

func (c *Catbox) Name() string { return "catbox" }

// Publish uploads every image, then creates an album holding them.
func (c *Catbox) Publish(ctx context.Context, album Album, progress Progress) (string, error) {
	images := album.Images()
	total := len(images) + 1

	var names []string
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return "", ferrors.NewCancelledError()
		}
		fields := []httpx.Field{
			{Name: "userhash", Value: c.UserHash},
			{Name: "reqtype", Value: "fileupload"},
		}
		body, err := c.post(ctx, fields, &httpx.File{Field: "fileToUpload", Path: img.Path, ContentType: "image/png"})
		if err != nil {
			return "", err
		}
		// The response is the file URL; albums reference the file name.
		names = append(names, path.Base(body))
		report(progress, i+1, total)
	}

	fields := []httpx.Field{
		{Name: "reqtype", Value: "createalbum"},
		{Name: "files", Value: strings.Join(names, " ")},
		{Name: "title", Value: album.Name},
		{Name: "desc", Value: album.Description},
	}
	if c.UserHash != "" {
		fields = append(fields, httpx.Field{Name: "userhash", Value: c.UserHash})
	}
	url, err := c.post(ctx, fields, nil)
	if err != nil {
		return "", err
	}
	report(progress, total, total)
	return url, nil
}

func (c *Catbox) post(ctx context.Context, fields []httpx.Field, file *httpx.File) (string, error) {
	body, contentType, err := httpx.Multipart(fields, file)
	if err != nil {
		return "", ferrors.NewUploadError("cannot encode form", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, body)
	if err != nil {
		return "", ferrors.NewUploadError("invalid catbox url", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := do(c.client, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ferrors.NewUploadError("cannot read catbox response", err)
	}
	return strings.TrimSpace(string(data)), nil
}
