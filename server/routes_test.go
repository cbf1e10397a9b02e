package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchgan/sketchgan/api"
	"github.com/sketchgan/sketchgan/imagegen"
	"github.com/sketchgan/sketchgan/model/modeltest"
	"github.com/sketchgan/sketchgan/store"
	"github.com/sketchgan/sketchgan/version"
	"github.com/sketchgan/sketchgan/vision"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProcessor schreibt ein graues Bild oder liefert err
type fakeProcessor struct {
	err      error
	noOutput bool
	calls    int
}

func (f *fakeProcessor) Run(_ context.Context, sketchPath, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.noOutput {
		return nil
	}
	if _, err := vision.LoadImage(sketchPath); err != nil {
		return err
	}
	return vision.SaveImage(outputPath, solid(8, 8, color.Gray{Y: 128}))
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	data, err := vision.EncodeBytes(solid(32, 32, c), vision.FormatPNG)
	require.NoError(t, err)
	return data
}

func newTestServer(t *testing.T, proc Processor, withHistory bool) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	opts := []Option{WithDirs(filepath.Join(dir, "uploads"), filepath.Join(dir, "results"))}
	if withHistory {
		st := &store.Store{DBPath: filepath.Join(dir, "sketches.db")}
		t.Cleanup(func() { st.Close() })
		opts = append(opts, WithHistory(st))
	}
	s := NewServer(proc, opts...)
	return s, s.GenerateRoutes()
}

// multipartRequest baut einen Upload mit den gegebenen Dateifeldern
func multipartRequest(t *testing.T, path string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, data := range files {
		part, err := w.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGeneralRoutes(t *testing.T) {
	_, h := newTestServer(t, &fakeProcessor{}, false)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sketchgan is running", rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, version.Version, decode[api.VersionResponse](t, rec).Version)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decode[api.DevicesResponse](t, rec).Devices
	require.NotEmpty(t, devices)
	assert.Equal(t, "cpu", devices[0].Backend)
}

func TestProcessSketchNoFile(t *testing.T) {
	proc := &fakeProcessor{}
	_, h := newTestServer(t, proc, false)

	rec := serve(h, multipartRequest(t, "/api/process-sketch", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decode[api.ErrorResponse](t, rec).Error)
	assert.Zero(t, proc.calls)
}

func TestProcessSketchSuccess(t *testing.T) {
	_, h := newTestServer(t, &fakeProcessor{}, true)

	rec := serve(h, multipartRequest(t, "/api/process-sketch", map[string][]byte{"sketch": pngBytes(t, color.White)}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.ProcessResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Sketch processed successfully", resp.Message)
	assert.True(t, strings.HasPrefix(resp.ResultURL, "/results/"), resp.ResultURL)
	assert.True(t, strings.HasSuffix(resp.ResultURL, "-sketch.png"), resp.ResultURL)

	// Ergebnis wird statisch ausgeliefert
	rec = serve(h, httptest.NewRequest(http.MethodGet, resp.ResultURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, vision.FormatPNG, vision.DetectFormat(rec.Body.Bytes()))

	// Historie
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	sk := decode[api.Sketch](t, rec)
	assert.Equal(t, "completed", sk.Status)
	assert.Equal(t, "sketch.png", sk.OriginalName)
	assert.Equal(t, resp.ResultURL, sk.ResultURL)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[api.ListSketchesResponse](t, rec).Sketches, 1)
}

func TestProcessSketchFailures(t *testing.T) {
	tests := map[string]struct {
		proc    *fakeProcessor
		error   string
		details string
	}{
		"Verarbeitung scheitert": {&fakeProcessor{err: errors.New("boom")}, "Failed to process the sketch", "boom"},
		"keine Ausgabe":          {&fakeProcessor{noOutput: true}, "Generated image file not found", "The GAN model did not produce an output file"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, h := newTestServer(t, tt.proc, true)

			rec := serve(h, multipartRequest(t, "/api/process-sketch", map[string][]byte{"sketch": pngBytes(t, color.Black)}))
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			resp := decode[api.ErrorResponse](t, rec)
			assert.Equal(t, tt.error, resp.Error)
			assert.Equal(t, tt.details, resp.Details)

			rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches", nil))
			list := decode[api.ListSketchesResponse](t, rec).Sketches
			require.Len(t, list, 1)
			assert.Equal(t, "failed", list[0].Status)
		})
	}
}

func TestSketchHistoryRoutes(t *testing.T) {
	_, h := newTestServer(t, &fakeProcessor{}, true)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches/unbekannt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, disabled := newTestServer(t, &fakeProcessor{}, false)
	rec = serve(disabled, httptest.NewRequest(http.MethodGet, "/api/sketches", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSketchesStatusFilter(t *testing.T) {
	proc := &fakeProcessor{}
	_, h := newTestServer(t, proc, true)

	upload := func() {
		serve(h, multipartRequest(t, "/api/process-sketch", map[string][]byte{"sketch": pngBytes(t, color.White)}))
	}
	upload()
	upload()
	proc.err = errors.New("boom")
	upload()

	list := func(query string) []api.Sketch {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches"+query, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[api.ListSketchesResponse](t, rec).Sketches
	}

	failed := list("?status=failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "failed", failed[0].Status)
	assert.Equal(t, "boom", failed[0].Error)

	assert.Len(t, list("?status=completed"), 2)

	// Begrenzt wird nach dem Filtern
	completed := list("?status=completed&limit=1")
	require.Len(t, completed, 1)
	assert.Equal(t, "completed", completed[0].Status)

	assert.Len(t, list("?limit=1"), 1)
	assert.Len(t, list(""), 3)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status", decode[api.ErrorResponse](t, rec).Error)
}

func TestDeleteSketch(t *testing.T) {
	s, h := newTestServer(t, &fakeProcessor{}, true)

	rec := serve(h, multipartRequest(t, "/api/process-sketch", map[string][]byte{"sketch": pngBytes(t, color.White)}))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.ProcessResponse](t, rec)

	sk, err := s.history.Sketch(resp.ID)
	require.NoError(t, err)
	require.FileExists(t, sk.InputPath)
	require.FileExists(t, sk.ResultPath)

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/api/sketches/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.NoFileExists(t, sk.InputPath)
	assert.NoFileExists(t, sk.ResultPath)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/sketches/"+resp.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(h, httptest.NewRequest(http.MethodGet, resp.ResultURL, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/api/sketches/"+resp.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, disabled := newTestServer(t, &fakeProcessor{}, false)
	rec = serve(disabled, httptest.NewRequest(http.MethodDelete, "/api/sketches/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimilaritySizeLimit(t *testing.T) {
	_, h := newTestServer(t, &fakeProcessor{}, false)
	black := pngBytes(t, color.Black)

	for _, size := range []string{"100000", "4097", "3", "abc"} {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("size", size))
		for _, field := range []string{"image1", "image2"} {
			part, err := w.CreateFormFile(field, field+".png")
			require.NoError(t, err)
			_, err = part.Write(black)
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/similarity", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())

		rec := serve(h, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, size)
		assert.Equal(t, "Invalid size", decode[api.ErrorResponse](t, rec).Error, size)
	}
}

func TestSimilarityHandler(t *testing.T) {
	_, h := newTestServer(t, &fakeProcessor{}, false)

	black := pngBytes(t, color.Black)
	rec := serve(h, multipartRequest(t, "/api/similarity", map[string][]byte{"image1": black, "image2": black}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.SimilarityResponse](t, rec)
	assert.InDelta(t, 1.0, resp.Similarity, 1e-12)
	assert.Equal(t, 128, resp.Size)

	rec = serve(h, multipartRequest(t, "/api/similarity", map[string][]byte{"image1": black, "image2": pngBytes(t, color.White)}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, decode[api.SimilarityResponse](t, rec).Similarity, 1.0)

	rec = serve(h, multipartRequest(t, "/api/similarity", map[string][]byte{"image1": black}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessSketchWithModel(t *testing.T) {
	dir := t.TempDir()
	proc := newLazyPipeline(modeltest.WriteGGUF(t, dir), imagegen.Options{Backend: "cpu"})
	t.Cleanup(func() { proc.Close() })

	_, h := newTestServer(t, proc, false)

	for range 2 {
		rec := serve(h, multipartRequest(t, "/api/process-sketch", map[string][]byte{"sketch": pngBytes(t, color.Black)}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[api.ProcessResponse](t, rec)
		rec = serve(h, httptest.NewRequest(http.MethodGet, resp.ResultURL, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		img, err := vision.LoadImageFromBytes(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, 128, img.Width)
	}
}

func TestLazyPipelineMissingModel(t *testing.T) {
	proc := newLazyPipeline(filepath.Join(t.TempDir(), "fehlt.pth"), imagegen.Options{})
	err := proc.Run(context.Background(), "in.png", "out.png")
	assert.ErrorIs(t, err, imagegen.ErrModelNotFound)
	assert.NoError(t, proc.Close())
}

func TestAllowedHostsMiddleware(t *testing.T) {
	s := NewServer(&fakeProcessor{}, WithAddr(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}), WithDirs(t.TempDir(), t.TempDir()))
	h := s.GenerateRoutes()

	tests := map[string]int{
		"localhost:5000":   http.StatusOK,
		"127.0.0.1:5000":   http.StatusOK,
		"sketch.local":     http.StatusOK,
		"evil.example.com": http.StatusForbidden,
	}

	for host, want := range tests {
		t.Run(host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = host
			assert.Equal(t, want, serve(h, req).Code)
		})
	}
}

func TestProcessTimeout(t *testing.T) {
	s, h := newTestServer(t, &blockingProcessor{}, false)
	s.timeout = 10 * time.Millisecond

	rec := serve(h, multipartRequest(t, "/api/process-sketch", map[string][]byte{"sketch": pngBytes(t, color.White)}))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, context.DeadlineExceeded.Error())
}

type blockingProcessor struct{}

func (blockingProcessor) Run(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}
