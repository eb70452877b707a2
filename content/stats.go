package content

import (
	"context"
	"fmt"
	"math"
)

// Stats aggregates the indexable corpus for site registration.
type Stats struct {
	TotalPages  int `json:"total_pages"`
	AverageSize int `json:"average_size"`
	StdDevSize  int `json:"std_dev_size"`
}

// ComputeStats returns the count, mean and population standard deviation of
// the body byte length across all indexable items.
func ComputeStats(ctx context.Context, repo Repository) (*Stats, error) {
	items, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	if len(items) == 0 {
		return &Stats{}, nil
	}

	var sum float64
	for _, it := range items {
		sum += float64(len(it.Body))
	}
	mean := sum / float64(len(items))

	var sqDiff float64
	for _, it := range items {
		d := float64(len(it.Body)) - mean
		sqDiff += d * d
	}
	stddev := math.Sqrt(sqDiff / float64(len(items)))

	return &Stats{
		TotalPages:  len(items),
		AverageSize: int(mean),
		StdDevSize:  int(stddev),
	}, nil
}
