package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ezsolvy/api/internal/store"
)

func pagePNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestBuildPDF(t *testing.T) {
	svc := NewExportService(store.NewMemory(), &fakeEnqueuer{})

	page := pagePNG(t)
	pdf, err := svc.BuildPDF([][]byte{page, page})
	if err != nil {
		t.Fatalf("BuildPDF failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("output does not look like a PDF")
	}
}

func TestBuildPDF_NoPages(t *testing.T) {
	svc := NewExportService(store.NewMemory(), &fakeEnqueuer{})

	if _, err := svc.BuildPDF(nil); err == nil {
		t.Fatal("expected error for empty page list")
	}
}
