package detector

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/parking-monitor/internal/domain/parking"
)

// intPtr returns a pointer to v.
func intPtr(v int) *int {
	return &v
}

// TestNew_ValidatesEndpoint verifies that New rejects an empty endpoint.
func TestNew_ValidatesEndpoint(t *testing.T) {
	t.Parallel()

	c, err := New("")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_Track posts a JPEG form with thresholds and decodes tracked boxes.
func TestClient_Track(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != trackPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		img, err := jpeg.Decode(file)
		if err != nil || img.Bounds().Dx() != 64 {
			http.Error(w, "bad frame", http.StatusBadRequest)
			return
		}

		if r.FormValue("conf") != "0.400" || r.FormValue("iou") != "0.500" || r.FormValue("classes") != "2,5,7" {
			http.Error(w, "bad fields", http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(response{Detections: []Box{
			{TrackID: intPtr(4), ClassID: 2, Confidence: 0.9, BBox: [4]float64{10, 20, 30, 60}},
			{ClassID: 2, Confidence: 0.5, BBox: [4]float64{0, 0, 2, 2}},
		}})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", WithThresholds(0.4, 0.5), WithClasses(2, 5, 7), WithCallTimeout(time.Second))
	require.NoError(t, err)

	boxes, err := c.Track(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 48)))
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	require.Equal(t, []parking.Detection{
		{ID: 4, Center: parking.Position{X: 20, Y: 40}},
	}, Tracked(boxes))
}

// TestClient_ErrorStatus wraps non-200 answers in ErrDetection.
func TestClient_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.ErrorIs(t, err, ErrDetection)
	require.Contains(t, err.Error(), "model not loaded")
}

// TestClient_Timeout fails the call once the per-request timeout elapses.
func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL, WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Track(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.ErrorIs(t, err, ErrDetection)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestResize checks exact scaling and the downscale-only helper.
func TestResize(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	require.Equal(t, image.Rect(0, 0, 640, 480), Resize(src, 640, 480).Bounds())
	require.Equal(t, image.Rect(0, 0, 640, 480), FitWithin(src, 640, 480).Bounds())

	small := image.NewRGBA(image.Rect(0, 0, 320, 240))
	require.Same(t, small, FitWithin(small, 640, 480))
}
