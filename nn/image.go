package nn

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageNet channel statistics, for Normalize
var (
	ImageNetMean = []float32{0.485, 0.456, 0.406}
	ImageNetStd  = []float32{0.229, 0.224, 0.225}
)

// Image is a channels x height x width raster stored in CHW order
type Image struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// NewImage allocates a zero image
func NewImage(channels, height, width int) *Image {
	return &Image{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

// NewImageFromData wraps data (CHW) without copying
func NewImageFromData(channels, height, width int, data []float32) (*Image, error) {
	if len(data) != channels*height*width {
		return nil, fmt.Errorf("%w: %d values for a %dx%dx%d image", ErrShapeMismatch, len(data), channels, height, width)
	}
	return &Image{Channels: channels, Height: height, Width: width, Data: data}, nil
}

// Shape returns [channels, height, width]
func (im *Image) Shape() []int {
	return []int{im.Channels, im.Height, im.Width}
}

// Clone returns a deep copy
func (im *Image) Clone() *Image {
	data := make([]float32, len(im.Data))
	copy(data, im.Data)
	return &Image{Channels: im.Channels, Height: im.Height, Width: im.Width, Data: data}
}

// Range returns the smallest and largest pixel values
func (im *Image) Range() (float32, float32) {
	return Min(im.Data), Max(im.Data)
}

// Normalize subtracts mean and divides by std per channel, in place
func (im *Image) Normalize(mean, std []float32) error {
	if len(mean) != im.Channels || len(std) != im.Channels {
		return fmt.Errorf("normalize: need %d channel statistics, got mean=%d std=%d", im.Channels, len(mean), len(std))
	}
	plane := im.Height * im.Width
	for c := 0; c < im.Channels; c++ {
		if std[c] == 0 {
			return fmt.Errorf("normalize: zero std for channel %d", c)
		}
		for i := c * plane; i < (c+1)*plane; i++ {
			im.Data[i] = (im.Data[i] - mean[c]) / std[c]
		}
	}
	return nil
}

// LoadImage decodes a JPEG, PNG or WebP file and resizes it to height x
// width. Pixels are RGB in [0, 1], CHW order.
func LoadImage(path string, height, width int) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return ImageFromGo(src, height, width), nil
}

// ImageFromGo converts a decoded image to a float raster of the given size
func ImageFromGo(src image.Image, height, width int) *Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	im := NewImage(3, height, width)
	plane := height * width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := dst.PixOffset(x, y)
			idx := y*width + x
			im.Data[idx] = float32(dst.Pix[off]) / 255.0
			im.Data[plane+idx] = float32(dst.Pix[off+1]) / 255.0
			im.Data[2*plane+idx] = float32(dst.Pix[off+2]) / 255.0
		}
	}
	return im
}
