package cluster

import (
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// dHash thumbnail dimensions: 9x8 grayscale yields a 64-bit gradient hash.
const (
	hashWidth  = 9
	hashHeight = 8
)

// Hash is a 64-bit perceptual difference hash of an image.
type Hash uint64

// ComputeHash returns the perceptual dHash of img. Images of the same item
// shot from similar angles land within a small Hamming distance of each
// other; unrelated garments do not.
func ComputeHash(img image.Image) Hash {
	small := imaging.Resize(img, hashWidth, hashHeight, imaging.Lanczos)
	gray := imaging.Grayscale(small)

	var h Hash
	bit := uint(0)
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			left := luminance(gray, x, y)
			right := luminance(gray, x+1, y)
			if left < right {
				h |= 1 << bit
			}
			bit++
		}
	}
	return h
}

// Distance returns the Hamming distance between two hashes (0..64).
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

func luminance(img *image.NRGBA, x, y int) uint8 {
	// Grayscale NRGBA stores the same value in R, G and B.
	i := img.PixOffset(x, y)
	return img.Pix[i]
}
