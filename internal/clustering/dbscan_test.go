package clustering

import (
	"reflect"
	"testing"
)

func TestDBSCAN(t *testing.T) {
	tests := []struct {
		name       string
		points     [][]float64
		minSamples int
		want       []int
	}{
		{
			name:       "four close points form a cluster counting themselves",
			points:     [][]float64{{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1}},
			minSamples: 4,
			want:       []int{0, 0, 0, 0},
		},
		{
			name:       "three close points are noise",
			points:     [][]float64{{0, 0}, {0.1, 0}, {0, 0.1}},
			minSamples: 4,
			want:       []int{Noise, Noise, Noise},
		},
		{
			name: "two clusters and an outlier",
			points: [][]float64{
				{0, 0}, {0.05, 0}, {0, 0.05}, {0.05, 0.05},
				{5, 5}, {5.05, 5}, {5, 5.05}, {5.05, 5.05},
				{10, -10},
			},
			minSamples: 4,
			want:       []int{0, 0, 0, 0, 1, 1, 1, 1, Noise},
		},
		{
			name: "border point joins the cluster without expanding it",
			points: [][]float64{
				{0, 0}, {0.1, 0}, {0.2, 0}, {0.3, 0},
				{0.7, 0},
				{1.1, 0},
			},
			minSamples: 4,
			want:       []int{0, 0, 0, 0, 0, Noise},
		},
		{
			name:       "empty input",
			points:     nil,
			minSamples: 4,
			want:       []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DBSCAN(tt.points, 0.41, tt.minSamples)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DBSCAN() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float64{1, 0}, []float64{2, 0}); got != 1 {
		t.Errorf("cosine(parallel) = %v, want 1", got)
	}
	if got := cosine([]float64{1, 0}, []float64{0, 3}); got != 0 {
		t.Errorf("cosine(orthogonal) = %v, want 0", got)
	}
	if got := cosine([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Errorf("cosine(zero) = %v, want 0", got)
	}
}
