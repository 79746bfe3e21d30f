// Package visual renders samples to PNG files
package visual

import "image"
import "image/color"
import "image/png"
import "io"
import "math"
import "os"

import "github.com/pkg/errors"
import "golang.org/x/image/draw"

import "github.com/neurlang/rectifiedflow/tensor"

func clamp01(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// Grid lays out samples of shape [C, H, W] with values in [0, 1] into rows
// of cols tiles, separated by a one pixel border, and upscales the result by
// scale with nearest neighbour interpolation. One channel renders as gray,
// three as RGB.
func Grid(samples *tensor.Tensor, shape []int, cols, scale int) (image.Image, error) {
	if len(shape) == 2 {
		shape = []int{1, shape[0], shape[1]}
	}
	if len(shape) != 3 || tensor.Numel(shape) != samples.Cols {
		return nil, errors.Errorf("visual: shape %v does not match %d features", shape, samples.Cols)
	}
	c, h, w := shape[0], shape[1], shape[2]
	if c != 1 && c != 3 {
		return nil, errors.Errorf("visual: %d channels, want 1 or 3", c)
	}
	if samples.Rows == 0 {
		return nil, errors.New("visual: no samples")
	}
	if cols <= 0 {
		cols = int(math.Ceil(math.Sqrt(float64(samples.Rows))))
	}
	cols = min(cols, samples.Rows)
	rows := (samples.Rows + cols - 1) / cols
	if scale <= 0 {
		scale = 1
	}

	grid := image.NewRGBA(image.Rect(0, 0, cols*(w+1)+1, rows*(h+1)+1))
	draw.Draw(grid, grid.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for n := 0; n < samples.Rows; n++ {
		s := samples.Row(n)
		ox, oy := 1+(n%cols)*(w+1), 1+(n/cols)*(h+1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				px := y*w + x
				var col color.RGBA
				if c == 1 {
					g := clamp01(s[px])
					col = color.RGBA{R: g, G: g, B: g, A: 255}
				} else {
					col = color.RGBA{R: clamp01(s[px]), G: clamp01(s[h*w+px]), B: clamp01(s[2*h*w+px]), A: 255}
				}
				grid.SetRGBA(ox+x, oy+y, col)
			}
		}
	}
	if scale == 1 {
		return grid, nil
	}
	b := grid.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(out, out.Bounds(), grid, b, draw.Src, nil)
	return out, nil
}

// Scatter plots 2-D points as dots on a size x size canvas covering the
// square [-extent, extent]², or the bounding square of the points when
// extent is not positive.
func Scatter(points *tensor.Tensor, size int, extent float64) (image.Image, error) {
	if points.Cols != 2 {
		return nil, errors.Errorf("visual: scatter needs 2 features, got %d", points.Cols)
	}
	if size <= 0 {
		return nil, errors.Errorf("visual: invalid size %d", size)
	}
	if extent <= 0 {
		for _, v := range points.Data {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				extent = math.Max(extent, math.Abs(v))
			}
		}
		extent = math.Max(extent*1.05, 1e-9)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	dot := color.RGBA{R: 31, G: 119, B: 180, A: 255}
	for i := 0; i < points.Rows; i++ {
		p := points.Row(i)
		x := int((p[0] + extent) / (2 * extent) * float64(size-1))
		y := int((extent - p[1]) / (2 * extent) * float64(size-1))
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if image.Pt(x+dx, y+dy).In(img.Bounds()) {
					img.SetRGBA(x+dx, y+dy, dot)
				}
			}
		}
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	return errors.Wrap(png.Encode(w, img), "encoding png")
}

func save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	err = Encode(f, img)
	if cerr := f.Close(); err == nil {
		err = errors.WithStack(cerr)
	}
	return err
}

// SaveGrid renders Grid to a PNG file.
func SaveGrid(path string, samples *tensor.Tensor, shape []int, cols, scale int) error {
	img, err := Grid(samples, shape, cols, scale)
	if err != nil {
		return err
	}
	return save(path, img)
}

// SaveScatter renders Scatter to a PNG file.
func SaveScatter(path string, points *tensor.Tensor, size int, extent float64) error {
	img, err := Scatter(points, size, extent)
	if err != nil {
		return err
	}
	return save(path, img)
}
