package keyframes

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// signatureSize is the side of the downsampled luma grid frames are reduced
// to before comparison.
const signatureSize = 16

// signature is a coarse luma fingerprint of one frame.
type signature [signatureSize * signatureSize]float64

// frameSignature decodes an image and reduces it to the luma grid.
func frameSignature(data []byte) (signature, error) {
	var sig signature
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return sig, fmt.Errorf("decode frame: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return sig, fmt.Errorf("empty frame")
	}

	for gy := 0; gy < signatureSize; gy++ {
		for gx := 0; gx < signatureSize; gx++ {
			px := bounds.Min.X + gx*width/signatureSize
			py := bounds.Min.Y + gy*height/signatureSize
			r, g, b, _ := img.At(px, py).RGBA()
			// Rec. 601 luma on 16-bit channel values.
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535
			sig[gy*signatureSize+gx] = luma
		}
	}
	return sig, nil
}

// diff returns the mean absolute luma difference between two signatures,
// in [0,1].
func (s signature) diff(other signature) float64 {
	var total float64
	for i := range s {
		d := s[i] - other[i]
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total / float64(len(s))
}
