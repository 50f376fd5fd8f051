// File: pool/sizeclass.go
// Author: momentics <momentics@gmail.com>
//
// Small-tier size classes: 32 linear steps of 8 bytes up to 256, then
// 32 geometric steps landing exactly on 1 MiB. Class selection is a
// binary search for the smallest class holding the request.

package pool

const smallClassCount = 64

// maxSmallSize is the largest small-tier payload (the last class).
const maxSmallSize = 1 << 20

var smallClassSizes = [smallClassCount]uintptr{
	8, 16, 24, 32, 40, 48, 56, 64, 72, 80, 88, 96, 104, 112, 120, 128,
	136, 144, 152, 160, 168, 176, 184, 192, 200, 208, 216, 224, 232, 240, 248, 256,
	336, 432, 560, 728, 944, 1224, 1584, 2048, 2656, 3448, 4472, 5800,
	7520, 9744, 12640, 16384, 21248, 27560, 35736, 46344, 60104, 77936,
	101072, 131072, 169984, 220440, 285872, 370728, 480776, 623488, 808568, 1048576,
}

// classIndex returns the index of the smallest class >= bytes.
// bytes must not exceed maxSmallSize.
func classIndex(bytes uintptr) int {
	low, high := 0, smallClassCount-1
	for low < high {
		middle := (low + high) >> 1
		if bytes <= smallClassSizes[middle] {
			high = middle
		} else {
			low = middle + 1
		}
	}
	return low
}

// classSize returns the payload bytes of class index.
func classSize(index int) uintptr {
	return smallClassSizes[index]
}
