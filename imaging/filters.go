package imaging

import (
	"image"
	"image/draw"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// Grayscale converts any image to 8-bit gray.
func Grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
	return g
}

// scaleGray resamples with the Catmull-Rom kernel, the cubic filter used for
// both the height cap and super-resolution.
func scaleGray(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// gaussianKernel builds a normalized 1-D kernel for the given sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(2.5 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// blurGray applies a separable gaussian blur.
func blurGray(src *image.Gray, sigma float64) *image.Gray {
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	w, h := src.Rect.Dx(), src.Rect.Dy()

	tmp := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				xx := clampInt(x+k, 0, w-1)
				acc += float64(row[xx]) * kernel[k+radius]
			}
			tmp.Pix[y*tmp.Stride+x] = uint8(math.Round(acc))
		}
	}
	dst := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				yy := clampInt(y+k, 0, h-1)
				acc += float64(tmp.Pix[yy*tmp.Stride+x]) * kernel[k+radius]
			}
			dst.Pix[y*dst.Stride+x] = uint8(math.Round(acc))
		}
	}
	return dst
}

// unsharp sharpens by adding back the difference against a gaussian blur:
// out = src + amount*(src - blurred).
func unsharp(src *image.Gray, sigma, amount float64) *image.Gray {
	blurred := blurGray(src, sigma)
	dst := image.NewGray(src.Rect)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x
			v := float64(src.Pix[i]) + amount*(float64(src.Pix[i])-float64(blurred.Pix[y*blurred.Stride+x]))
			dst.Pix[y*dst.Stride+x] = clampByte(v)
		}
	}
	return dst
}

// median3 applies a 3x3 median filter, enough to knock out salt-and-pepper
// noise from screenshot compression without smearing glyph edges.
func median3(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(src.Rect)
	var window [9]byte
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					xx := clampInt(x+dx, 0, w-1)
					window[n] = src.Pix[yy*src.Stride+xx]
					n++
				}
			}
			sort.Slice(window[:], func(i, j int) bool { return window[i] < window[j] })
			dst.Pix[y*dst.Stride+x] = window[4]
		}
	}
	return dst
}

// adaptiveThreshold binarises against the local mean over a square window:
// pixels brighter than mean-bias go white, the rest black. The local mean
// comes from an integral image, keeping the pass linear in pixel count.
func adaptiveThreshold(src *image.Gray, window int, bias float64) *image.Gray {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	radius := window / 2

	integral := make([]int64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.Pix[y*src.Stride+x])
			integral[(y+1)*stride+(x+1)] = integral[y*stride+(x+1)] + rowSum
		}
	}

	dst := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-radius), minInt(h-1, y+radius)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-radius), minInt(w-1, x+radius)
			count := int64(x1-x0+1) * int64(y1-y0+1)
			sum := integral[(y1+1)*stride+(x1+1)] -
				integral[y0*stride+(x1+1)] -
				integral[(y1+1)*stride+x0] +
				integral[y0*stride+x0]
			mean := float64(sum) / float64(count)
			if float64(src.Pix[y*src.Stride+x]) > mean-bias {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
