// Package rasterize converts a PDF's first page into a raster image for
// the recognition pipeline. Later pages of multi-page documents are
// ignored.
package rasterize

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/shoplens/labelscan/internal/preprocess"
	"github.com/shoplens/labelscan/internal/progress"
)

// ProcessingError represents a failure while rasterizing a PDF.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("pdf processing failed at %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// RenderScale upscales the page raster for better recognition of small
// print.
const RenderScale = 2.0

// Coarse progress stages. Recognition downstream of the rasterizer is
// rescaled into [HandoffFraction, 1.0] so the caller sees one continuous
// signal.
const (
	LoadFraction    = 0.1
	RenderFraction  = 0.3
	HandoffFraction = 0.5
)

// extractStem is the basename (without extension) of the temp file the
// PDF is written to. pdfcpu prefixes it onto every extracted image
// filename: page 1 resource Im0 comes out as input_1_Im0.jpg.
const extractStem = "input"

// FirstPage rasterizes page 1 of the given PDF into a maximum-quality
// JPEG. Scanned labels and receipts carry the page as a single embedded
// raster, so the largest image on page 1 is the page content.
func FirstPage(ctx context.Context, pdfData []byte, onProgress progress.Func) ([]byte, error) {
	if len(pdfData) == 0 {
		return nil, &ProcessingError{Stage: "load", Err: errors.New("empty document")}
	}

	tempDir, err := os.MkdirTemp("", "labelscan-pdf-*")
	if err != nil {
		return nil, &ProcessingError{Stage: "load", Err: err}
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	pdfPath := filepath.Join(tempDir, extractStem+".pdf")
	if err := os.WriteFile(pdfPath, pdfData, 0o600); err != nil {
		return nil, &ProcessingError{Stage: "load", Err: err}
	}

	progress.Report(onProgress, "Loading PDF...", LoadFraction)

	if _, err := api.PageCountFile(pdfPath); err != nil {
		return nil, &ProcessingError{Stage: "load", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outDir := filepath.Join(tempDir, "out")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, &ProcessingError{Stage: "render", Err: err}
	}
	if err := api.ExtractImagesFile(pdfPath, outDir, []string{"1"}, nil); err != nil {
		return nil, &ProcessingError{Stage: "render", Err: err}
	}

	page, err := largestFirstPageImage(outDir)
	if err != nil {
		return nil, err
	}
	progress.Report(onProgress, "Rendering PDF page...", RenderFraction)

	w := int(float64(page.Bounds().Dx()) * RenderScale)
	h := int(float64(page.Bounds().Dy()) * RenderScale)
	scaled := imaging.Resize(page, w, h, imaging.Lanczos)

	blob, err := preprocess.EncodeJPEG(scaled)
	if err != nil {
		return nil, &ProcessingError{Stage: "encode", Err: err}
	}

	progress.Report(onProgress, "Processing text...", HandoffFraction)
	return blob, nil
}

// largestFirstPageImage loads the extracted images belonging to page 1
// and returns the one with the largest area.
func largestFirstPageImage(dir string) (image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ProcessingError{Stage: "render", Err: err}
	}

	var (
		best     image.Image
		bestArea int
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pageNum, err := parsePageFromFilename(entry.Name())
		if err != nil || pageNum != 1 {
			continue
		}
		img, err := loadImageFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		area := img.Bounds().Dx() * img.Bounds().Dy()
		if area > bestArea {
			best = img
			bestArea = area
		}
	}

	if best == nil {
		return nil, &ProcessingError{Stage: "render", Err: errors.New("no raster content on first page")}
	}
	return best, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path is inside our temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// parsePageFromFilename extracts the page number from a pdfcpu extract
// filename of the form <stem>_<page>_<resource>.<ext>.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, extractStem+"_") {
		return 0, errors.New("not an extracted image file")
	}

	parts := strings.Split(filename, "_")
	if len(parts) < 3 {
		return 0, errors.New("invalid filename format")
	}

	return strconv.Atoi(parts[1])
}
