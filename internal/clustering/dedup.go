package clustering

import "github.com/your-org/photolabel/internal/models"

// Dedup keeps the first detection per source image name, preserving order.
func Dedup(dets []models.FaceDetection) []models.FaceDetection {
	seen := make(map[string]struct{}, len(dets))
	out := make([]models.FaceDetection, 0, len(dets))
	for _, d := range dets {
		if _, ok := seen[d.Image.Name]; ok {
			continue
		}
		seen[d.Image.Name] = struct{}{}
		out = append(out, d)
	}
	return out
}
