//go:build !gocv

package source

import "fmt"

// OpenVideo needs OpenCV; this build has none.
func OpenVideo(path string) (Feed, error) {
	return nil, fmt.Errorf("%w: %s", ErrVideoUnsupported, path)
}
