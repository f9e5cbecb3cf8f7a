package fingerprint

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// photoLike renders a smooth low-frequency pattern, the kind of structure a
// normalized clothing-pattern photo reduces to.
func photoLike(w, h int, phase float64) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 +
				60*math.Sin(float64(x)/9+phase) +
				50*math.Cos(float64(y)/7-phase) +
				20*math.Sin((float64(x)+float64(y))/13)
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

// noisy renders seeded random noise; two seeds give independent hashes.
func noisy(w, h int, seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(rng.Intn(256))})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestComputeDeterministic(t *testing.T) {
	data := encodePNG(t, photoLike(64, 64, 0))

	first, err := Compute(data)
	require.NoError(t, err)
	second, err := Compute(data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, string(first), HexLength)
	assert.True(t, first.Valid())
}

func TestComputeDistinctImagesDiffer(t *testing.T) {
	a, err := Compute(encodePNG(t, noisy(64, 64, 1)))
	require.NoError(t, err)
	b, err := Compute(encodePNG(t, noisy(64, 64, 2)))
	require.NoError(t, err)

	d, err := Distance(a, b)
	require.NoError(t, err)
	assert.Greater(t, d, DefaultThreshold, "independent images should not fall inside the match threshold")
}

func TestComputeRecompressionRobust(t *testing.T) {
	img := photoLike(64, 64, 1.3)

	high, err := Compute(encodeJPEG(t, img, 90))
	require.NoError(t, err)
	low, err := Compute(encodeJPEG(t, img, 60))
	require.NoError(t, err)

	d, err := Distance(high, low)
	require.NoError(t, err)
	assert.LessOrEqual(t, d, DefaultThreshold, "recompression should stay inside the match threshold")
}

func TestComputeResizeRobust(t *testing.T) {
	img := photoLike(64, 64, 2.1)
	resized := imaging.Resize(img, 96, 96, imaging.Lanczos)

	original, err := Compute(encodePNG(t, img))
	require.NoError(t, err)
	scaled, err := Compute(encodePNG(t, resized))
	require.NoError(t, err)

	d, err := Distance(original, scaled)
	require.NoError(t, err)
	assert.LessOrEqual(t, d, DefaultThreshold, "minor resize should stay inside the match threshold")
}

func TestComputeRejectsGarbage(t *testing.T) {
	_, err := Compute(bytes.Repeat([]byte{0x42}, 1024))
	require.Error(t, err)

	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestComputeRejectsUndersizedInput(t *testing.T) {
	_, err := Compute([]byte("tiny"))
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, decodeErr.Reason, "too small")
}
