package twitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const (
	maxMediaBytes      = 5 << 20
	mediaCategoryImage = "tweet_image"
	defaultMediaType   = "image/jpeg"
)

type mediaAsset struct {
	data      []byte
	mediaType string
	name      string
}

// fetchMedia downloads an image without API credentials. It is not paced.
func (c *HTTPClient) fetchMedia(ctx context.Context, rawURL string) (mediaAsset, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return mediaAsset{}, fmt.Errorf("invalid image url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return mediaAsset{}, err
	}
	resp, err := c.media.Do(req)
	if err != nil {
		return mediaAsset{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return mediaAsset{}, fmt.Errorf("fetch image %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return mediaAsset{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxMediaBytes {
		return mediaAsset{}, fmt.Errorf("image %s exceeds %d bytes", rawURL, maxMediaBytes)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "image"
	}
	return mediaAsset{
		data:      data,
		mediaType: mediaTypeOf(resp.Header.Get("Content-Type"), u.Path),
		name:      name,
	}, nil
}

// uploadMedia sends one asset to the media endpoint and returns its id.
func (c *HTTPClient) uploadMedia(ctx context.Context, asset mediaAsset) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("media_category", mediaCategoryImage); err != nil {
		return "", err
	}
	if err := mw.WriteField("media_type", asset.mediaType); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("media", asset.name)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(asset.data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
		MediaIDString string `json:"media_id_string"`
	}
	if err := c.call(EndpointMediaUpload, req, &out); err != nil {
		return "", err
	}
	id := out.Data.ID
	if id == "" {
		id = out.MediaIDString
	}
	if id == "" {
		return "", fmt.Errorf("media upload returned no id")
	}
	return id, nil
}

// mediaTypeOf prefers the served Content-Type, then the file extension.
func mediaTypeOf(contentType, p string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(p))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	return defaultMediaType
}
