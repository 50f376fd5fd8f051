// File: pool/sizeclass_test.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClassTableShape(t *testing.T) {
	require.Len(t, smallClassSizes, smallClassCount)

	// First 32 classes are linear with step 8.
	for i := 0; i < 32; i++ {
		assert.Equal(t, uintptr(8*(i+1)), smallClassSizes[i], "class %d", i)
	}
	// Strictly increasing throughout, landing exactly on 1 MiB.
	for i := 1; i < smallClassCount; i++ {
		assert.Greater(t, smallClassSizes[i], smallClassSizes[i-1], "class %d", i)
	}
	assert.Equal(t, uintptr(maxSmallSize), smallClassSizes[smallClassCount-1])
}

func TestClassIndexSelectsSmallestFit(t *testing.T) {
	for i, size := range smallClassSizes {
		assert.Equal(t, i, classIndex(size), "exact size %d", size)
		if i > 0 {
			assert.Equal(t, i, classIndex(smallClassSizes[i-1]+1), "one past class %d", i-1)
		}
	}
	assert.Equal(t, 0, classIndex(1))
	assert.Equal(t, 0, classIndex(8))
	assert.Equal(t, 1, classIndex(9))
	assert.Equal(t, smallClassCount-1, classIndex(maxSmallSize))
}

func TestClassSizeCoversRequestPlusRouting(t *testing.T) {
	for n := uintptr(1); n <= 4096; n += 7 {
		idx := classIndex(n + routingHeaderSize)
		require.GreaterOrEqual(t, classSize(idx), n+routingHeaderSize, "request %d", n)
	}
}
