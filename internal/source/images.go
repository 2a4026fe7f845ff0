package source

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoding.
	_ "image/jpeg" // Register JPEG decoding.
	_ "image/png"  // Register PNG decoding.
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"  // Register BMP decoding.
	_ "golang.org/x/image/webp" // Register WebP decoding.
)

// imageExtensions are the file types picked up from an image directory.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".webp": {},
}

// Images feeds the pictures of a directory in lexical file name order.
type Images struct {
	files []string
	next  int
}

// OpenImages lists the pictures in dir. Other files are ignored.
func OpenImages(dir string) (*Images, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	slices.Sort(files)

	return &Images{files: files}, nil
}

// Len returns the number of pictures in the feed.
func (s *Images) Len() int {
	return len(s.files)
}

// Next decodes the next picture.
func (s *Images) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	if s.next >= len(s.files) {
		return Frame{}, io.EOF
	}

	index := s.next
	s.next++

	img, err := DecodeFile(s.files[index])
	if err != nil {
		return Frame{Index: index, Name: filepath.Base(s.files[index])}, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}

	return Frame{
		Index: index,
		Name:  filepath.Base(s.files[index]),
		Image: img,
	}, nil
}

// FPS is unknown for image sequences.
func (s *Images) FPS() float64 {
	return 0
}

// Close is a no-op.
func (s *Images) Close() error {
	return nil
}

// DecodeFile decodes a single picture of any registered format.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}

	return img, nil
}
