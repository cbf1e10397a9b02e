// Package api - API-Methoden des Clients.

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", "", nil, nil)
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", "", nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Devices lists the compute devices of the server.
func (c *Client) Devices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/api/devices", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessSketch laedt die Skizze unter path hoch und liefert die URL des
// erzeugten Bildes.
func (c *Client) ProcessSketch(ctx context.Context, path string) (*ProcessResponse, error) {
	body, contentType, err := multipartFiles(formFile{"sketch", path})
	if err != nil {
		return nil, err
	}

	var resp ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/api/process-sketch", contentType, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchResult laedt ein erzeugtes Bild ueber seine resultUrl
func (c *Client) FetchResult(ctx context.Context, resultURL string) ([]byte, error) {
	ref, err := url.Parse(resultURL)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return nil, fmt.Errorf("result url must be relative to the server: %s", resultURL)
	}

	request, err := c.newRequest(ctx, http.MethodGet, ref.Path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := checkError(resp, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Similarity vergleicht zwei lokale Bilder auf dem Server per SSIM
func (c *Client) Similarity(ctx context.Context, path1, path2 string) (float64, error) {
	body, contentType, err := multipartFiles(formFile{"image1", path1}, formFile{"image2", path2})
	if err != nil {
		return 0, err
	}

	var resp SimilarityResponse
	if err := c.do(ctx, http.MethodPost, "/api/similarity", contentType, body, &resp); err != nil {
		return 0, err
	}
	return resp.Similarity, nil
}

// ListSketches gibt die letzten limit Eintraege der Historie zurueck.
// Ein nicht leerer status filtert nach Verarbeitungsstatus.
func (c *Client) ListSketches(ctx context.Context, limit int, status string) (*ListSketchesResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if status != "" {
		query.Set("status", status)
	}

	path := "/api/sketches"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp ListSketchesResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sketch laedt einen Eintrag der Historie
func (c *Client) Sketch(ctx context.Context, id string) (*Sketch, error) {
	var resp Sketch
	if err := c.do(ctx, http.MethodGet, "/api/sketches/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSketch entfernt einen Eintrag samt Upload und Ergebnis
func (c *Client) DeleteSketch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sketches/"+url.PathEscape(id), "", nil, nil)
}

// formFile ist ein Dateifeld eines multipart-Uploads
type formFile struct {
	field, path string
}

// multipartFiles packt Dateien in der gegebenen Reihenfolge als
// multipart/form-data Felder
func multipartFiles(files ...formFile) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, ff := range files {
		f, err := os.Open(ff.path)
		if err != nil {
			return nil, "", err
		}

		part, err := w.CreateFormFile(ff.field, filepath.Base(ff.path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
