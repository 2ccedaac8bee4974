// Package media uploads listing photos and videos to a remote media host and
// returns durable URLs for them.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/atinyakov/swyppy/internal/models"
)

// Per-phase bounds for dial, TLS handshake and response headers. The body
// itself is only bounded by the caller's context.
const (
	imageTimeout = 30 * time.Second
	videoTimeout = 60 * time.Second
)

// maxErrorBody caps how much of a failed response is kept as error detail.
const maxErrorBody = 4 << 10

// Cloudinary uploads media with an unsigned upload preset to a
// Cloudinary-compatible endpoint.
type Cloudinary struct {
	endpoint string
	preset   string
	// client serves image uploads.
	client *http.Client
	// videoClient has longer timeouts for larger payloads.
	videoClient *http.Client
}

// NewCloudinary creates an uploader for endpoint with the given preset.
// A nil client falls back to per-phase timeouts of 30s for images and 60s
// for videos. A non-nil client's transport is shared by both kinds.
func NewCloudinary(endpoint, preset string, client *http.Client) *Cloudinary {
	var base http.RoundTripper
	if client != nil {
		base = client.Transport
	}
	c := &Cloudinary{
		endpoint:    endpoint,
		preset:      preset,
		client:      newUploadClient(base, imageTimeout),
		videoClient: newUploadClient(base, videoTimeout),
	}
	if client != nil {
		c.client = client
	}
	return c
}

// newUploadClient returns a client whose dial, TLS handshake and response
// header waits are each bounded by phase. A non-default base transport
// (tests, proxies) is reused as is.
func newUploadClient(base http.RoundTripper, phase time.Duration) *http.Client {
	if base != nil && base != http.DefaultTransport {
		return &http.Client{Transport: base}
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: phase}).DialContext,
		TLSHandshakeTimeout:   phase,
		ResponseHeaderTimeout: phase,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
}

// uploadResponse is the subset of the host's JSON reply we rely on.
type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
}

// Upload sends data as a single multipart POST and returns the secure URL.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, kind models.MediaKind) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty %s payload", models.ErrValidation, kind)
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown media kind %q", models.ErrValidation, kind)
	}

	body, contentType, err := c.buildForm(data, kind)
	if err != nil {
		return "", fmt.Errorf("%w: build form: %w", models.ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", models.ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	client := c.client
	if kind == models.MediaVideo {
		client = c.videoClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", models.ErrUploadFailed, models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: %s upload status %d: %s",
			models.ErrUploadFailed, kind, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", models.ErrURLExtraction, err)
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("%w: response has no secure_url", models.ErrURLExtraction)
	}
	return out.SecureURL, nil
}

func (c *Cloudinary) buildForm(data []byte, kind models.MediaKind) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename, partType := "image.jpg", "image/*"
	if kind == models.MediaVideo {
		filename, partType = "video.mp4", "video/*"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", partType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("upload_preset", c.preset); err != nil {
		return nil, "", err
	}
	if kind == models.MediaVideo {
		if err := w.WriteField("resource_type", "video"); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
