package imagefetch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcoach/coachd/pkg/coacherr"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func TestFetch_DecodesDimensions(t *testing.T) {
	data := encodePNG(t, 750, 1334)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 10<<20)
	img, err := f.Fetch(context.Background(), srv.URL+"/shot.png")
	require.NoError(t, err)
	assert.Equal(t, 750, img.Width)
	assert.Equal(t, 1334, img.Height)
	assert.Equal(t, "image/png", img.MediaType)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, srv.URL+"/shot.png", img.URL)
}

func TestFetch_SizeLimit(t *testing.T) {
	data := encodePNG(t, 200, 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, int64(len(data))-1)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, coacherr.KindImageFetch, coacherr.KindOf(err))
	assert.Contains(t, err.Error(), "maximum size")
}

func TestFetch_NotAnImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 10<<20)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, coacherr.KindImageFetch, coacherr.KindOf(err))
}

func TestFetch_UpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 10<<20)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, coacherr.KindImageFetch, coacherr.KindOf(err))
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewHTTPFetcher(time.Second, 10<<20)
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, coacherr.KindImageFetch, coacherr.KindOf(err))
}
