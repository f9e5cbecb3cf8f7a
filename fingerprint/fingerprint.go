package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// Fingerprint is a 64-bit DCT perceptual hash rendered as a fixed-length
// hex string. It is a pure function of the image bytes: identical bytes
// always produce identical fingerprints.
type Fingerprint string

const (
	// HashBits is the fingerprint width in bits.
	HashBits = 64

	// HexLength is the rendered fingerprint length.
	HexLength = HashBits / 4

	// dctSize is the edge length the image is reduced to before the DCT.
	dctSize = 32

	// blockSize is the edge length of the retained low-frequency block.
	blockSize = 8

	// minImageBytes is a sanity floor: no decodable upload is smaller.
	minImageBytes = 128
)

// DecodeError means the input bytes are not a decodable image. A run that
// hits it aborts before any write is staged.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode image: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Compute calculates the perceptual hash of an image. The caller is assumed
// to have normalized orientation and cropped to a square upstream; the hash
// itself is robust to minor resize and recompression differences.
func Compute(data []byte) (Fingerprint, error) {
	if len(data) < minImageBytes {
		return "", &DecodeError{Reason: fmt.Sprintf("input too small (%d bytes)", len(data))}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", &DecodeError{Reason: "unreadable image data", Err: err}
	}

	// Reduce to a 32x32 grayscale plane. Lanczos resampling keeps the
	// reduction stable across small source-size differences.
	small := imaging.Grayscale(imaging.Resize(img, dctSize, dctSize, imaging.Lanczos))

	plane := make([]float64, dctSize*dctSize)
	for y := 0; y < dctSize; y++ {
		for x := 0; x < dctSize; x++ {
			// After Grayscale the channels are equal; red carries luminance.
			plane[y*dctSize+x] = float64(small.NRGBAAt(x, y).R)
		}
	}

	freq := dct2d(plane, dctSize)

	// Median-threshold the 8x8 low-frequency block into 64 bits.
	block := make([]float64, 0, blockSize*blockSize)
	for y := 0; y < blockSize; y++ {
		for x := 0; x < blockSize; x++ {
			block = append(block, freq[y*dctSize+x])
		}
	}
	median := medianOf(block)

	var bits uint64
	for _, v := range block {
		bits <<= 1
		if v >= median {
			bits |= 1
		}
	}

	return Fingerprint(fmt.Sprintf("%016x", bits)), nil
}

// dct2d applies a DCT-II to a square plane of edge length n.
func dct2d(plane []float64, n int) []float64 {
	// Precompute the cosine basis; the naive transform is O(n^2) per
	// coefficient and runs on a fixed 32x32 plane.
	cos := make([][]float64, n)
	for k := range cos {
		cos[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			cos[k][i] = cosBasis(k, i, n)
		}
	}

	// Row pass then column pass.
	rows := make([]float64, n*n)
	for y := 0; y < n; y++ {
		for u := 0; u < n; u++ {
			var sum float64
			for x := 0; x < n; x++ {
				sum += plane[y*n+x] * cos[u][x]
			}
			rows[y*n+u] = sum * scaleFactor(u, n)
		}
	}

	out := make([]float64, n*n)
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			var sum float64
			for y := 0; y < n; y++ {
				sum += rows[y*n+u] * cos[v][y]
			}
			out[v*n+u] = sum * scaleFactor(v, n)
		}
	}

	return out
}

// cosBasis is the DCT-II basis term cos(pi*k*(2i+1)/(2n)).
func cosBasis(k, i, n int) float64 {
	return math.Cos(math.Pi * float64(k) * (2*float64(i) + 1) / (2 * float64(n)))
}

func scaleFactor(k, n int) float64 {
	if k == 0 {
		return math.Sqrt(1.0 / float64(n))
	}
	return math.Sqrt(2.0 / float64(n))
}

// medianOf returns the median of values without modifying the input.
func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	length := len(sorted)
	if length == 0 {
		return 0
	}
	if length%2 == 0 {
		return (sorted[length/2-1] + sorted[length/2]) / 2
	}
	return sorted[length/2]
}
