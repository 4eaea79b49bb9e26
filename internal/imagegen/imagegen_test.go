package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/bookforge/internal/core"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(8, 8, color.White), imaging.PNG))
	return buf.Bytes()
}

func TestCheckImage(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	require.NoError(t, os.WriteFile(good, pngBytes(t), 0o644))
	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	text := filepath.Join(dir, "text.png")
	require.NoError(t, os.WriteFile(text, []byte("not an image at all"), 0o644))

	assert.NoError(t, CheckImage(good))
	assert.ErrorIs(t, CheckImage(""), core.ErrNotFound)
	assert.ErrorIs(t, CheckImage(filepath.Join(dir, "missing.png")), core.ErrNotFound)
	assert.ErrorIs(t, CheckImage(empty), core.ErrMalformedResponse)
	assert.ErrorIs(t, CheckImage(text), core.ErrMalformedResponse)
}

func TestMockGenerator(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := NewMockGenerator().FailFirst("a", 2).FailAlways("b").SkipWrite("c")

	_, err := m.Generate(ctx, Request{ID: "a", OutputPath: filepath.Join(dir, "a.png")})
	assert.ErrorIs(t, err, ErrMockFailure)
	_, err = m.Generate(ctx, Request{ID: "a", OutputPath: filepath.Join(dir, "a.png")})
	assert.ErrorIs(t, err, ErrMockFailure)
	path, err := m.Generate(ctx, Request{ID: "a", OutputPath: filepath.Join(dir, "a.png")})
	require.NoError(t, err)
	assert.NoError(t, CheckImage(path))

	_, err = m.Generate(ctx, Request{ID: "b", OutputPath: filepath.Join(dir, "b.png")})
	assert.ErrorIs(t, err, ErrMockFailure)

	path, err = m.Generate(ctx, Request{ID: "c", OutputPath: filepath.Join(dir, "c.png")})
	require.NoError(t, err)
	assert.Error(t, CheckImage(path))

	assert.Len(t, m.Requests(), 5)
}

func TestIdeogramGenerator(t *testing.T) {
	img := pngBytes(t)
	var posts atomic.Int32
	var downloads atomic.Int32

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		if r.Header.Get("Api-Key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _, refErr := r.FormFile("style_reference_images")
		hasRef := refErr == nil
		styleType := r.FormValue("style_type")

		// A request carries exactly one of style_type or a reference image.
		if hasRef == (styleType != "") {
			http.Error(w, "bad style fields", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"url":"`+srv.URL+`/image.png"}]}`)
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		// First download fails to exercise the retry.
		if downloads.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(img)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := NewIdeogramGenerator("key", 5*time.Second,
		WithIdeogramEndpoint(srv.URL+"/generate"),
		WithIdeogramHTTPClient(srv.Client()),
		WithIdeogramRateLimit(6000, 10),
		WithIdeogramDownloadPause(time.Millisecond))

	dir := t.TempDir()
	first, err := g.Generate(context.Background(), Request{ID: "chapter1_image1", Prompt: "a red door", OutputPath: filepath.Join(dir, "one.png")})
	require.NoError(t, err)
	require.NoError(t, CheckImage(first))

	second, err := g.Generate(context.Background(), Request{
		ID: "chapter1_image2", Prompt: "a blue door",
		StyleReference: first, OutputPath: filepath.Join(dir, "two.png"),
	})
	require.NoError(t, err)
	assert.NoError(t, CheckImage(second))
	assert.Equal(t, int32(2), posts.Load())
	assert.Equal(t, int32(3), downloads.Load())
}

func TestIdeogramStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, core.ErrRateLimited},
		{http.StatusUnauthorized, core.ErrNoAPIKey},
		{http.StatusBadGateway, core.ErrServerError},
		{http.StatusBadRequest, core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			g := NewIdeogramGenerator("key", time.Second, WithIdeogramEndpoint(srv.URL), WithIdeogramRateLimit(6000, 10))
			_, err := g.Generate(context.Background(), Request{ID: "x", OutputPath: filepath.Join(t.TempDir(), "x.png")})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIGenerator(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(pngBytes(t))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[{"b64_json":"`+payload+`"}]}`)
	}))
	t.Cleanup(srv.Close)

	g := NewOpenAIGenerator("key", 5*time.Second, []option.RequestOption{option.WithBaseURL(srv.URL + "/")})
	out := filepath.Join(t.TempDir(), "images", "cover.png")
	path, err := g.Generate(context.Background(), Request{ID: "cover", Prompt: "a castle", OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, out, path)
	assert.NoError(t, CheckImage(path))
}
