package pipeline

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// checkImage rejects objects that do not decode as an image, before they
// are uploaded to the embedding service.
func checkImage(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty object")
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}
