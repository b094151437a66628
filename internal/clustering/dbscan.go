package clustering

// Noise is the label of points that belong to no dense cluster.
const Noise = -1

const unvisited = -2

// DBSCAN labels each point with a cluster index (0, 1, ...) or Noise.
// A point is a core point when at least minSamples points, itself included,
// lie within eps Euclidean distance. Clusters are numbered in the order their
// first core point appears, so labels are stable for a given input order.
func DBSCAN(points [][]float64, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = Noise
			continue
		}

		cluster := next
		next++
		labels[i] = cluster

		queue := append([]int(nil), neighbors...)
		for k := 0; k < len(queue); k++ {
			q := queue[k]
			if labels[q] == Noise {
				labels[q] = cluster
			}
			if labels[q] != unvisited {
				continue
			}
			labels[q] = cluster
			if qn := regionQuery(points, q, eps); len(qn) >= minSamples {
				queue = append(queue, qn...)
			}
		}
	}
	return labels
}

func regionQuery(points [][]float64, i int, eps float64) []int {
	var out []int
	for j := range points {
		if euclidean(points[i], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}
