package image

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Encode func(io.Writer, image.Image) error

// Encoder returns the encoder matching a file extension or a format name.
func Encoder(name string) (Encode, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = "." + strings.ToLower(name)
	}
	var encode Encode
	switch ext {
	case ".png":
		encode = png.Encode
	case ".jpg", ".jpeg":
		encode = func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: 85})
		}
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", ext)
	}
	return encode, nil
}

// Save encodes the image into the output file using its extension.
func Save(img image.Image, output string) error {
	encode, err := Encoder(output)
	if err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("image: couldn't create %s: %w", output, err)
	}
	defer f.Close()
	if err := encode(f, img); err != nil {
		return fmt.Errorf("image: couldn't encode %s: %w", output, err)
	}
	return nil
}
