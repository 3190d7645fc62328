package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition_Properties(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 60; n++ {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		for size := 1; size <= 50; size++ {
			chunks, err := Partition(items, size)
			require.NoError(t, err)

			wantChunks := (n + size - 1) / size
			require.Len(t, chunks, wantChunks, "n=%d size=%d", n, size)

			var flat []int
			for i, c := range chunks {
				require.NotEmpty(t, c)
				require.LessOrEqual(t, len(c), size)
				if i < len(chunks)-1 {
					require.Len(t, c, size)
				}
				flat = append(flat, c...)
			}
			if n == 0 {
				assert.Empty(t, flat)
				continue
			}
			require.Equal(t, items, flat, "n=%d size=%d", n, size)
		}
	}
}

func TestPartition_Examples(t *testing.T) {
	t.Parallel()

	chunks, err := Partition([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 3)
}

func TestPartition_InvalidSize(t *testing.T) {
	t.Parallel()

	_, err := Partition([]int{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
	_, err = Partition([]int{1}, -3)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestPartition_AppendDoesNotBleed(t *testing.T) {
	t.Parallel()

	chunks, err := Partition([]int{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	_ = append(chunks[0], 99)
	assert.Equal(t, []int{3, 4}, chunks[1])
}
