package pipeline

import (
	"errors"
	"fmt"
)

var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// Partition splits items into contiguous chunks of at most size elements,
// keeping order. Each chunk's capacity is capped so appending to one chunk
// never writes into the next.
func Partition[T any](items []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	if len(items) == 0 {
		return nil, nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}
