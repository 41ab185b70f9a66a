package image

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestEncoder(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"frame.png", false},
		{"frame.JPG", false},
		{"jpeg", false},
		{"png", false},
		{"frame.webp", true},
		{"gif", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encoder(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Encoder(%q) err = %v; want error %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestSave(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	DrawLabel(img, "ambient pads", color.White)
	output := filepath.Join(t.TempDir(), "frame.png")
	if err := Save(img, output); err != nil {
		t.Fatalf("Save() err = %v; want nil", err)
	}
	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("image.Decode() err = %v; want nil", err)
	}
	if format != "png" {
		t.Fatalf("format = %q; want %q", format, "png")
	}
	if got.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v; want %v", got.Bounds(), img.Bounds())
	}
}
