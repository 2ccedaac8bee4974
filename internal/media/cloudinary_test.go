package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/swyppy/internal/models"
)

type captured struct {
	file         []byte
	filename     string
	partType     string
	preset       string
	resourceType string
}

func newHostServer(t *testing.T, got *captured, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				got.file = data
				got.filename = part.FileName()
				got.partType = part.Header.Get("Content-Type")
			case "upload_preset":
				got.preset = string(data)
			case "resource_type":
				got.resourceType = string(data)
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCloudinaryUpload_Image(t *testing.T) {
	var got captured
	srv := newHostServer(t, &got, http.StatusOK, `{"secure_url":"https://cdn/img.jpg","public_id":"img"}`)

	u := NewCloudinary(srv.URL, "Preset2025", srv.Client())
	url, err := u.Upload(context.Background(), []byte("jpegbytes"), models.MediaImage)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/img.jpg", url)
	assert.Equal(t, []byte("jpegbytes"), got.file)
	assert.Equal(t, "image.jpg", got.filename)
	assert.Equal(t, "image/*", got.partType)
	assert.Equal(t, "Preset2025", got.preset)
	assert.Empty(t, got.resourceType)
}

func TestCloudinaryUpload_VideoSetsResourceType(t *testing.T) {
	var got captured
	srv := newHostServer(t, &got, http.StatusOK, `{"secure_url":"https://cdn/v.mp4"}`)

	u := NewCloudinary(srv.URL, "p", srv.Client())
	url, err := u.Upload(context.Background(), []byte("mp4bytes"), models.MediaVideo)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/v.mp4", url)
	assert.Equal(t, "video.mp4", got.filename)
	assert.Equal(t, "video/*", got.partType)
	assert.Equal(t, "video", got.resourceType)
}

func TestCloudinaryUpload_StatusCarriesDetailForBothKinds(t *testing.T) {
	for _, kind := range []models.MediaKind{models.MediaImage, models.MediaVideo} {
		t.Run(string(kind), func(t *testing.T) {
			var got captured
			srv := newHostServer(t, &got, http.StatusBadRequest, `{"error":{"message":"Upload preset not found"}}`)

			u := NewCloudinary(srv.URL, "p", srv.Client())
			_, err := u.Upload(context.Background(), []byte("x"), kind)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrUploadFailed))
			assert.Contains(t, err.Error(), "Upload preset not found")
			assert.Contains(t, err.Error(), "400")
		})
	}
}

func TestCloudinaryUpload_URLExtraction(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"missing field", `{"url":"http://cdn/x.jpg"}`},
		{"empty field", `{"secure_url":""}`},
		{"not json", `<html>oops</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got captured
			srv := newHostServer(t, &got, http.StatusOK, tt.reply)
			u := NewCloudinary(srv.URL, "p", srv.Client())
			_, err := u.Upload(context.Background(), []byte("x"), models.MediaImage)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrURLExtraction), "got %v", err)
		})
	}
}

func TestCloudinaryUpload_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	client := srv.Client()
	srv.Close()

	u := NewCloudinary(endpoint, "p", client)
	_, err := u.Upload(context.Background(), []byte("x"), models.MediaImage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUploadFailed))
	assert.True(t, errors.Is(err, models.ErrNetwork))
}

func TestCloudinaryUpload_Validation(t *testing.T) {
	u := NewCloudinary("http://unused", "p", nil)

	_, err := u.Upload(context.Background(), nil, models.MediaImage)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = u.Upload(context.Background(), []byte("x"), models.MediaKind("audio"))
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.True(t, strings.Contains(err.Error(), "audio"))
}

func TestNewCloudinary_PerPhaseTimeouts(t *testing.T) {
	u := NewCloudinary("https://host/upload", "preset", nil)

	for name, tc := range map[string]struct {
		client *http.Client
		phase  time.Duration
	}{
		"image": {u.client, imageTimeout},
		"video": {u.videoClient, videoTimeout},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Zero(t, tc.client.Timeout, "large files are bounded per phase, not in total")
			tr, ok := tc.client.Transport.(*http.Transport)
			require.True(t, ok)
			assert.Equal(t, tc.phase, tr.ResponseHeaderTimeout)
			assert.Equal(t, tc.phase, tr.TLSHandshakeTimeout)
		})
	}
}

func TestNewUploadClient_ReusesCustomTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	c := newUploadClient(srv.Client().Transport, videoTimeout)
	assert.Same(t, srv.Client().Transport, c.Transport)
}
