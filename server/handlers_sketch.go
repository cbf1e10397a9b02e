// handlers_sketch.go - Upload, Verarbeitung und Historie von Skizzen
// Enthaelt: ProcessSketchHandler, SimilarityHandler, ListSketchesHandler, GetSketchHandler, DeleteSketchHandler

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sketchgan/sketchgan/api"
	"github.com/sketchgan/sketchgan/ssim"
	"github.com/sketchgan/sketchgan/store"
	"github.com/sketchgan/sketchgan/vision"
)

// resultURL bildet einen Ergebnispfad auf seine URL unter /results ab
func resultURL(path string) string {
	return "/results/" + filepath.Base(path)
}

func abortError(c *gin.Context, status int, msg string, details string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: msg, Details: details})
}

// ProcessSketchHandler verarbeitet POST /api/process-sketch
func (s *Server) ProcessSketchHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	file, err := c.FormFile("sketch")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			abortError(c, http.StatusRequestEntityTooLarge, "File too large", fmt.Sprintf("limit is %d bytes", maxErr.Limit))
			return
		}
		abortError(c, http.StatusBadRequest, "No file uploaded", "")
		return
	}

	id, inputPath, outputPath, err := s.saveUpload(c, file)
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		abortError(c, http.StatusInternalServerError, "Server error", err.Error())
		return
	}

	if s.history != nil {
		sk, err := s.history.CreateSketch(file.Filename, inputPath, c.PostForm("prompt"))
		if err != nil {
			slog.Warn("failed to record sketch", "error", err)
		} else {
			id = sk.ID
			s.updateHistory(id, store.SketchUpdate{Status: store.StatusProcessing})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	slog.Info("processing sketch", "id", id, "name", file.Filename, "size", file.Size)
	if err := s.proc.Run(ctx, inputPath, outputPath); err != nil {
		slog.Error("sketch processing failed", "id", id, "error", err)
		s.updateHistory(id, store.SketchUpdate{Status: store.StatusFailed, Error: err.Error()})
		abortError(c, http.StatusInternalServerError, "Failed to process the sketch", err.Error())
		return
	}

	if _, err := os.Stat(outputPath); err != nil {
		s.updateHistory(id, store.SketchUpdate{Status: store.StatusFailed, Error: "no output file"})
		abortError(c, http.StatusInternalServerError, "Generated image file not found", "The GAN model did not produce an output file")
		return
	}

	s.updateHistory(id, store.SketchUpdate{Status: store.StatusCompleted, ResultPath: outputPath})
	c.JSON(http.StatusOK, api.ProcessResponse{
		Success:   true,
		ResultURL: resultURL(outputPath),
		Message:   "Sketch processed successfully",
		ID:        id,
	})
}

// saveUpload legt die Skizze unter uploads ab und bestimmt den Ergebnispfad
// results/<name>.png mit demselben Basisnamen.
func (s *Server) saveUpload(c *gin.Context, file *multipart.FileHeader) (id, inputPath, outputPath string, err error) {
	for _, dir := range []string{s.uploads, s.results} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", "", err
		}
	}

	id = uuid.NewString()
	name := filepath.Base(filepath.Clean("/" + file.Filename))
	if name == "/" || name == "." {
		name = "sketch"
	}

	inputPath = filepath.Join(s.uploads, id+"-"+name)
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		return "", "", "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath = filepath.Join(s.results, base+".png")
	return id, inputPath, outputPath, nil
}

func (s *Server) updateHistory(id string, u store.SketchUpdate) {
	if s.history == nil {
		return
	}
	if err := s.history.UpdateSketch(id, u); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to update sketch history", "id", id, "error", err)
	}
}

// SimilarityHandler verarbeitet POST /api/similarity mit den Feldern image1 und image2
func (s *Server) SimilarityHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*s.maxUpload)

	size := ssim.DefaultImageSize
	if v := c.PostForm("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < ssim.DefaultWindowSize || n > ssim.MaxImageSize {
			abortError(c, http.StatusBadRequest, "Invalid size", v)
			return
		}
		size = n
	}

	var images [2]*vision.ImageInput
	for i, field := range []string{"image1", "image2"} {
		img, err := formImage(c, field)
		if err != nil {
			abortError(c, http.StatusBadRequest, "Invalid "+field, err.Error())
			return
		}
		images[i] = img
	}

	score, err := ssim.CompareImages(images[0], images[1], size)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "Failed to compare images", err.Error())
		return
	}

	c.JSON(http.StatusOK, api.SimilarityResponse{Similarity: score, Size: size})
}

func formImage(c *gin.Context, field string) (*vision.ImageInput, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return vision.DecodeImage(f)
}

// ListSketchesHandler verarbeitet GET /api/sketches
func (s *Server) ListSketchesHandler(c *gin.Context) {
	if s.history == nil {
		abortError(c, http.StatusNotFound, "sketch history is disabled", "")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			abortError(c, http.StatusBadRequest, "Invalid limit", v)
			return
		}
		limit = n
	}

	var status store.Status
	if v := c.Query("status"); v != "" {
		st, err := store.ParseStatus(v)
		if err != nil {
			abortError(c, http.StatusBadRequest, "Invalid status", v)
			return
		}
		status = st
	}

	// Mit Statusfilter wird erst gefiltert und dann begrenzt
	fetch := limit
	if status != "" {
		fetch = 0
	}

	sketches, err := s.history.Sketches(fetch)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "Failed to list sketches", err.Error())
		return
	}

	if status != "" {
		sketches = slices.DeleteFunc(sketches, func(sk store.Sketch) bool { return sk.Status != status })
		if limit > 0 && len(sketches) > limit {
			sketches = sketches[:limit]
		}
	}

	resp := api.ListSketchesResponse{Sketches: make([]api.Sketch, 0, len(sketches))}
	for _, sk := range sketches {
		resp.Sketches = append(resp.Sketches, toAPISketch(sk))
	}
	c.JSON(http.StatusOK, resp)
}

// GetSketchHandler verarbeitet GET /api/sketches/:id
func (s *Server) GetSketchHandler(c *gin.Context) {
	if s.history == nil {
		abortError(c, http.StatusNotFound, "sketch history is disabled", "")
		return
	}

	sk, err := s.history.Sketch(c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortError(c, http.StatusNotFound, "Sketch not found", c.Param("id"))
	case err != nil:
		abortError(c, http.StatusInternalServerError, "Failed to load sketch", err.Error())
	default:
		c.JSON(http.StatusOK, toAPISketch(sk))
	}
}

// DeleteSketchHandler verarbeitet DELETE /api/sketches/:id und entfernt
// Eintrag, Upload und Ergebnisbild
func (s *Server) DeleteSketchHandler(c *gin.Context) {
	if s.history == nil {
		abortError(c, http.StatusNotFound, "sketch history is disabled", "")
		return
	}

	id := c.Param("id")
	sk, err := s.history.Sketch(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortError(c, http.StatusNotFound, "Sketch not found", id)
		return
	case err != nil:
		abortError(c, http.StatusInternalServerError, "Failed to load sketch", err.Error())
		return
	}

	for _, path := range []string{sk.InputPath, sk.ResultPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove sketch file", "id", id, "path", path, "error", err)
		}
	}

	if err := s.history.DeleteSketch(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortError(c, http.StatusNotFound, "Sketch not found", id)
			return
		}
		abortError(c, http.StatusInternalServerError, "Failed to delete sketch", err.Error())
		return
	}

	slog.Info("sketch deleted", "id", id)
	c.Status(http.StatusOK)
}

func toAPISketch(sk store.Sketch) api.Sketch {
	out := api.Sketch{
		ID:           sk.ID,
		OriginalName: sk.OriginalName,
		Prompt:       sk.Prompt,
		Status:       string(sk.Status),
		Error:        sk.Error,
		CreatedAt:    sk.CreatedAt,
		UpdatedAt:    sk.UpdatedAt,
	}
	if sk.ResultPath != "" {
		out.ResultURL = resultURL(sk.ResultPath)
	}
	return out
}
