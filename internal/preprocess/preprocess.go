package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Error represents a failure during image preprocessing.
type Error struct {
	Operation string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("preprocess error in %s: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Luma weights for perceptual grayscale conversion (ITU-R BT.601).
const (
	lumaRed   = 0.299
	lumaGreen = 0.587
	lumaBlue  = 0.114
)

// midpoint is the pivot for both the contrast curve and the global
// binarization threshold.
const midpoint = 128.0

// sharpenKernel is the 3x3 unsharp kernel: center 5, orthogonal
// neighbors -1, corners 0.
var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// Preprocess applies the configured transform pipeline to img and returns
// the processed pixels. Transform order is fixed: upscale, grayscale,
// brightness, contrast, threshold, sharpen, with channel values clamped to
// [0,255] after each step.
func Preprocess(img image.Image, cfg Config) (*image.NRGBA, error) {
	if img == nil {
		return nil, &Error{Operation: "decode", Err: errors.New("input image is nil")}
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, &Error{Operation: "decode", Err: errors.New("empty image")}
	}

	// Upscaling materially improves recognition on small label text.
	if cfg.Scale > 0 && cfg.Scale != 1.0 {
		w := int(float64(bounds.Dx()) * cfg.Scale)
		h := int(float64(bounds.Dy()) * cfg.Scale)
		if w <= 0 || h <= 0 {
			return nil, &Error{Operation: "scale", Err: fmt.Errorf("invalid target dimensions %dx%d", w, h)}
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	out := imaging.Clone(img)
	adjustPixels(out, cfg)

	if cfg.Sharpen {
		sharpenNRGBA(out)
	}

	return out, nil
}

// PreprocessBlob decodes an encoded image, preprocesses it, and re-encodes
// it as a maximum-quality JPEG for the recognition engine.
func PreprocessBlob(data []byte, cfg Config) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Operation: "decode", Err: err}
	}

	processed, err := Preprocess(img, cfg)
	if err != nil {
		return nil, err
	}

	return EncodeJPEG(processed)
}

// EncodeJPEG re-encodes an image at maximum quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(100)); err != nil {
		return nil, &Error{Operation: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// adjustPixels runs the per-pixel stages in place over the NRGBA buffer.
func adjustPixels(img *image.NRGBA, cfg Config) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r := float64(pix[i])
		g := float64(pix[i+1])
		b := float64(pix[i+2])

		if cfg.Grayscale {
			luma := r*lumaRed + g*lumaGreen + b*lumaBlue
			r, g, b = luma, luma, luma
		}

		if cfg.Brightness != 0 {
			r *= cfg.Brightness
			g *= cfg.Brightness
			b *= cfg.Brightness
		}

		if cfg.Contrast != 0 {
			r = (r-midpoint)*cfg.Contrast + midpoint
			g = (g-midpoint)*cfg.Contrast + midpoint
			b = (b-midpoint)*cfg.Contrast + midpoint
		}

		if cfg.Threshold {
			// Blunt global threshold; the no-threshold pass exists for
			// inputs this is too aggressive on.
			if (r+g+b)/3 > midpoint {
				r, g, b = 255, 255, 255
			} else {
				r, g, b = 0, 0, 0
			}
		}

		pix[i] = clampByte(r)
		pix[i+1] = clampByte(g)
		pix[i+2] = clampByte(b)
	}
}

// sharpenNRGBA convolves the interior with the unsharp kernel. It reads
// from a snapshot of the pixel data so the kernel never observes its own
// output, and leaves the one-pixel border untouched.
func sharpenNRGBA(img *image.NRGBA) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w < 3 || h < 3 {
		return
	}

	src := make([]uint8, len(img.Pix))
	copy(src, img.Pix)
	stride := img.Stride

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			for c := 0; c < 3; c++ {
				var sum float64
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						idx := (y+ky)*stride + (x+kx)*4 + c
						sum += float64(src[idx]) * sharpenKernel[(ky+1)*3+(kx+1)]
					}
				}
				img.Pix[y*stride+x*4+c] = clampByte(sum)
			}
		}
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
