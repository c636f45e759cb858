package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSaveReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	data := encodePNG(t, 10, 10)

	ref, err := store.Save(data, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(ref, ".png") {
		t.Errorf("ref = %q, want sniffed .png suffix", ref)
	}
	if strings.ContainsAny(ref, "/\\") {
		t.Errorf("ref %q must not contain path separators", ref)
	}

	got, err := store.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read bytes differ from saved bytes")
	}

	size, err := store.Stat(ref)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Save(nil, ".png"); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	for _, ref := range []string{"", "../secret", "a/b.png", "..", "dir\\x.png"} {
		if _, err := store.Path(ref); err == nil {
			t.Errorf("ref %q should be rejected", ref)
		}
	}
}

func TestStatMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Stat("missing.png"); err == nil {
		t.Error("expected error for missing ref")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ref, err := store.Save(encodePNG(t, 4, 4), ".png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ref); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Read(ref); err == nil {
		t.Error("read after delete should fail")
	}
}

func TestSaveCrop(t *testing.T) {
	store := newTestStore(t)
	source := encodePNG(t, 100, 80)

	ref, err := store.SaveCrop(source, 10, 20, 30, 40)
	if err != nil {
		t.Fatalf("SaveCrop: %v", err)
	}

	data, err := store.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 40 {
		t.Errorf("crop = %dx%d, want 30x40", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestSaveCropOutsideImage(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.SaveCrop(encodePNG(t, 10, 10), 50, 50, 5, 5); err == nil {
		t.Error("expected error for crop outside bounds")
	}
}

func TestThumbnailFits(t *testing.T) {
	store := newTestStore(t)
	ref, err := store.Save(encodePNG(t, 100, 50), ".png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	thumb, err := store.Thumbnail(context.Background(), ref, 32)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
		t.Errorf("thumbnail = %dx%d, want 32x16 (aspect preserved)", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestThumbnailInvalidSize(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Thumbnail(context.Background(), "whatever.png", 0); err == nil {
		t.Error("expected error for non-positive size")
	}
}
