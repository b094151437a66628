package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/photolabel/internal/models"
)

type FacelessLister interface {
	ListImagesWithoutFaces(ctx context.Context) ([]models.Image, error)
}

// DetectFacesFor runs face detection for an already labeled image and stores
// the result. An image whose faces were stored meanwhile is left untouched.
func (p *Processor) DetectFacesFor(ctx context.Context, img models.Image) error {
	var image []byte
	err := timed("fetch", func() (err error) {
		image, err = p.deps.Objects.GetObject(ctx, img.BucketID, img.Name)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	if err := checkImage(image); err != nil {
		return err
	}
	if err := timed("faces", func() error { return p.saveFaces(ctx, img.ID, image) }); err != nil {
		return fmt.Errorf("detect faces: %w", err)
	}
	return nil
}

// BackfillFaces detects faces for every labeled image that has none recorded,
// covering images labeled while face detection was off. A failing image is
// logged and skipped; it stays listed for the next run.
func BackfillFaces(ctx context.Context, images FacelessLister, proc *Processor) (int, error) {
	pending, err := images.ListImagesWithoutFaces(ctx)
	if err != nil {
		return 0, fmt.Errorf("list images without faces: %w", err)
	}

	done := 0
	for _, img := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := proc.DetectFacesFor(ctx, img); err != nil {
			slog.Warn("face backfill", "error", err, "image_id", img.ID)
			continue
		}
		done++
	}

	slog.Info("face backfill complete", "detected", done, "pending", len(pending))
	return done, nil
}
