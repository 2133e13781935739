package recattn

import (
	"fmt"
	"math"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

// PoolingConfig configures a MeanPooling layer.
type PoolingConfig struct {
	KernelWidth  int
	KernelHeight int
	StrideWidth  int
	StrideHeight int

	// Floor selects how partial windows at the end of an
	// axis are handled.
	// If true, they are dropped.
	// If false, they are kept and averaged over the cells
	// which fall inside the input.
	Floor bool

	// InputWidth and InputHeight are the dimensions of
	// every input channel.
	InputWidth  int
	InputHeight int
}

// Validate checks that every size is positive and that
// the kernel fits the input in floor mode.
func (p *PoolingConfig) Validate() error {
	for _, x := range []int{p.KernelWidth, p.KernelHeight, p.StrideWidth,
		p.StrideHeight, p.InputWidth, p.InputHeight} {
		if x < 1 {
			return fmt.Errorf("pooling config %+v: %w", *p, ErrInvalidConfig)
		}
	}
	if p.OutputWidth() < 1 || p.OutputHeight() < 1 {
		return fmt.Errorf("pooling config %+v: kernel larger than input: %w",
			*p, ErrInvalidConfig)
	}
	return nil
}

// OutputWidth returns the width of every output channel.
func (p *PoolingConfig) OutputWidth() int {
	return pooledSize(p.InputWidth, p.KernelWidth, p.StrideWidth, p.Floor)
}

// OutputHeight returns the height of every output
// channel.
func (p *PoolingConfig) OutputHeight() int {
	return pooledSize(p.InputHeight, p.KernelHeight, p.StrideHeight, p.Floor)
}

func pooledSize(in, kernel, stride int, floor bool) int {
	x := float64(in-kernel)/float64(stride) + 1
	if floor {
		return int(math.Floor(x))
	}
	return int(math.Ceil(x))
}

// MeanPooling averages every window of every channel.
//
// Each input column is a stack of channels.
// Within a channel, the width index varies fastest, so the
// entry at (x, y) of channel c is at row
// x + y*InputWidth + c*InputWidth*InputHeight.
// Outputs use the same layout.
type MeanPooling struct {
	Config PoolingConfig

	channels int
	batch    int
	output   *mat.Dense
}

// NewMeanPooling creates a MeanPooling layer.
func NewMeanPooling(c PoolingConfig) (*MeanPooling, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &MeanPooling{Config: c}, nil
}

// DeserializeMeanPooling deserializes a MeanPooling layer.
func DeserializeMeanPooling(d []byte) (*MeanPooling, error) {
	var kw, kh, sw, sh, iw, ih, floor serializer.Int
	if err := serializer.DeserializeAny(d, &kw, &kh, &sw, &sh, &floor, &iw, &ih); err != nil {
		return nil, essentials.AddCtx("deserialize MeanPooling", err)
	}
	res, err := NewMeanPooling(PoolingConfig{
		KernelWidth:  int(kw),
		KernelHeight: int(kh),
		StrideWidth:  int(sw),
		StrideHeight: int(sh),
		Floor:        floor != 0,
		InputWidth:   int(iw),
		InputHeight:  int(ih),
	})
	if err != nil {
		return nil, essentials.AddCtx("deserialize MeanPooling", err)
	}
	return res, nil
}

// Forward pools every channel of every column.
func (m *MeanPooling) Forward(in *mat.Dense) (*mat.Dense, error) {
	rows, cols := in.Dims()
	area := m.Config.InputWidth * m.Config.InputHeight
	if rows == 0 || rows%area != 0 {
		return nil, fmt.Errorf("mean pooling: %d rows for %dx%d channels: %w",
			rows, m.Config.InputWidth, m.Config.InputHeight, ErrShapeMismatch)
	}
	m.channels = rows / area
	m.batch = cols

	outW, outH := m.Config.OutputWidth(), m.Config.OutputHeight()
	outArea := outW * outH
	out := mat.NewDense(outArea*m.channels, cols, nil)
	for col := 0; col < cols; col++ {
		for ch := 0; ch < m.channels; ch++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					var sum float64
					count := m.window(x, y, func(row int) {
						sum += in.At(ch*area+row, col)
					})
					if count > 0 {
						out.Set(ch*outArea+y*outW+x, col, sum/float64(count))
					}
				}
			}
		}
	}
	m.output = out
	return out, nil
}

// Backward spreads every output gradient evenly across
// its window.
func (m *MeanPooling) Backward(in, gy *mat.Dense) (*mat.Dense, error) {
	outW, outH := m.Config.OutputWidth(), m.Config.OutputHeight()
	outArea := outW * outH
	rows, cols := gy.Dims()
	if m.output == nil || rows != outArea*m.channels || cols != m.batch {
		return nil, fmt.Errorf("mean pooling: upstream is %dx%d: %w", rows, cols,
			ErrShapeMismatch)
	}

	area := m.Config.InputWidth * m.Config.InputHeight
	res := mat.NewDense(area*m.channels, cols, nil)
	for col := 0; col < cols; col++ {
		for ch := 0; ch < m.channels; ch++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					count := m.window(x, y, func(int) {})
					if count == 0 {
						continue
					}
					share := gy.At(ch*outArea+y*outW+x, col) / float64(count)
					m.window(x, y, func(row int) {
						idx := ch*area + row
						res.Set(idx, col, res.At(idx, col)+share)
					})
				}
			}
		}
	}
	return res, nil
}

// Gradient returns nil, since the layer has no parameters.
func (m *MeanPooling) Gradient(in, err *mat.Dense) ([]float64, error) {
	return nil, nil
}

// Parameters returns nil.
func (m *MeanPooling) Parameters() []float64 {
	return nil
}

// OutputParameter returns the result of the last Forward.
func (m *MeanPooling) OutputParameter() *mat.Dense {
	return m.output
}

// window calls f with the in-channel row of every cell in
// the window for output (x, y) and returns the number of
// cells.
// In ceiling mode, a trailing window may be empty.
func (m *MeanPooling) window(x, y int, f func(row int)) int {
	c := &m.Config
	startX, startY := x*c.StrideWidth, y*c.StrideHeight
	endX := essentials.MinInt(startX+c.KernelWidth, c.InputWidth)
	endY := essentials.MinInt(startY+c.KernelHeight, c.InputHeight)
	for j := startY; j < endY; j++ {
		for i := startX; i < endX; i++ {
			f(i + j*c.InputWidth)
		}
	}
	if endX <= startX || endY <= startY {
		return 0
	}
	return (endX - startX) * (endY - startY)
}

// SerializerType returns the unique ID used to serialize
// a MeanPooling layer with the serializer package.
func (m *MeanPooling) SerializerType() string {
	return "github.com/unixpickle/recattn.MeanPooling"
}

// Serialize serializes the layer configuration.
func (m *MeanPooling) Serialize() ([]byte, error) {
	c := &m.Config
	var floor serializer.Int
	if c.Floor {
		floor = 1
	}
	return serializer.SerializeAny(
		serializer.Int(c.KernelWidth),
		serializer.Int(c.KernelHeight),
		serializer.Int(c.StrideWidth),
		serializer.Int(c.StrideHeight),
		floor,
		serializer.Int(c.InputWidth),
		serializer.Int(c.InputHeight),
	)
}
