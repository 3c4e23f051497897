// Package imaging turns uploaded bytes into a normalized RGB pixel buffer.
package imaging

import (
	"image"
	"image/color"
)

// DecodedImage is a height x width x 3 buffer of 8-bit samples in RGB order,
// stored row-major with a stride of Width*3. It is not modified after decode.
type DecodedImage struct {
	Width  int
	Height int
	Pix    []uint8
	Format string
}

// At returns the RGB samples of the pixel at (x, y).
func (d *DecodedImage) At(x, y int) (r, g, b uint8) {
	i := (y*d.Width + x) * 3
	return d.Pix[i], d.Pix[i+1], d.Pix[i+2]
}

// Pixels returns the number of pixels in the image.
func (d *DecodedImage) Pixels() int {
	return d.Width * d.Height
}

// RGBA returns an opaque copy of the image as a standard library image.
func (d *DecodedImage) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	for i, j := 0, 0; i < len(d.Pix); i, j = i+3, j+4 {
		out.Pix[j] = d.Pix[i]
		out.Pix[j+1] = d.Pix[i+1]
		out.Pix[j+2] = d.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}

// FromImage copies img into a DecodedImage. Alpha is dropped without
// premultiplication, the same way a colour-mode OpenCV read behaves.
func FromImage(img image.Image, format string) (*DecodedImage, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, invalid("empty image bounds %dx%d", width, height)
	}

	out := &DecodedImage{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
		Format: format,
	}

	i := 0
	switch src := img.(type) {
	case *image.YCbCr:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				yi := src.YOffset(x, y)
				ci := src.COffset(x, y)
				r, g, b := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = r, g, b
				i += 3
			}
		}
	case *image.NRGBA:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, y):]
			for x := 0; x < width; x++ {
				copy(out.Pix[i:i+3], row[x*4:x*4+3])
				i += 3
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
				i += 3
			}
		}
	}
	return out, nil
}

// NewRGB builds an image by evaluating fill for every pixel.
func NewRGB(width, height int, fill func(x, y int) (r, g, b uint8)) *DecodedImage {
	out := &DecodedImage{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = fill(x, y)
			i += 3
		}
	}
	return out
}
