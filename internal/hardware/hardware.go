package hardware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"strings"

	"ledsign/internal/pixelset"
	"ledsign/internal/wire"
)

const (
	// Slots is the number of letter slots in a sign configuration.
	Slots = 8
	// Scale converts geometry units into display units.
	Scale = 1.0 / 768

	uniformRow = 64
)

// ErrLetterIndex is returned when a letter index exceeds the configured
// letter count.
var ErrLetterIndex = errors.New("letter index out of range")

// Config is the raw per-slot geometry key table reported by a sign.
type Config [Slots]byte

func (c Config) String() string {
	parts := make([]string, len(c))
	for i, b := range c {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Geometry describes one letter board.
type Geometry struct {
	Width  uint16
	Name   string
	Points []uint32
}

// ParseGeometry decodes a little-endian table of packed coordinates.
func ParseGeometry(width uint16, name string, raw []byte) (Geometry, error) {
	if len(raw)%4 != 0 {
		return Geometry{}, fmt.Errorf("geometry table of %d bytes is not a whole number of entries", len(raw))
	}
	g := Geometry{Width: width, Name: name, Points: make([]uint32, len(raw)/4)}
	for i := range g.Points {
		g.Points[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return g, nil
}

// Raw returns the coordinate table in its transfer encoding.
func (g Geometry) Raw() []byte {
	out := make([]byte, 0, len(g.Points)*4)
	for _, p := range g.Points {
		out = binary.LittleEndian.AppendUint32(out, p)
	}
	return out
}

// Fetcher retrieves the geometry for a nonzero key.
type Fetcher interface {
	FetchGeometry(ctx context.Context, key byte) (Geometry, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key byte) (Geometry, error)

// FetchGeometry calls f.
func (f FetcherFunc) FetchGeometry(ctx context.Context, key byte) (Geometry, error) {
	return f(ctx, key)
}

// Point is a pixel position in display units.
type Point struct {
	X, Y float64
}

// Hardware is an immutable pixel layout.
type Hardware struct {
	config     Config
	ledDepth   int
	points     []Point
	present    []bool
	pixelCount int
	maxX, maxY float64
	mask       pixelset.Set
}

// New resolves every distinct key in config through f and builds the layout.
func New(ctx context.Context, config Config, f Fetcher) (*Hardware, error) {
	geometries := make(map[byte]Geometry, Slots)
	for _, key := range config {
		if key == 0 {
			continue
		}
		if _, ok := geometries[key]; ok {
			continue
		}
		g, err := f.FetchGeometry(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetch geometry %#02x: %w", key, err)
		}
		geometries[key] = g
	}
	return FromGeometries(config, geometries), nil
}

// FromGeometries builds a layout from already resolved geometries. Keys
// missing from the map are treated as empty slots.
func FromGeometries(config Config, geometries map[byte]Geometry) *Hardware {
	h := &Hardware{config: config}
	for _, key := range config {
		if key == 0 {
			continue
		}
		h.ledDepth = max(h.ledDepth, len(geometries[key].Points))
	}
	total := h.ledDepth * Slots
	h.points = make([]Point, total)
	h.present = make([]bool, total)
	h.mask = pixelset.New(total)

	var offsetX float64
	for slot, key := range config {
		var g Geometry
		if key != 0 {
			g = geometries[key]
		}
		for j, xy := range g.Points {
			i := slot*h.ledDepth + j
			p := Point{
				X: offsetX + float64(xy&0xffff)*Scale,
				Y: float64(xy>>16) * Scale,
			}
			h.points[i] = p
			h.present[i] = true
			h.mask.Add(i)
			h.maxY = max(h.maxY, p.Y)
			h.pixelCount++
		}
		offsetX += float64(g.Width) * Scale
	}
	h.maxX = max(offsetX, 0)
	return h
}

// Uniform returns a single-letter layout of n pixels on a grid uniformRow
// pixels wide. It stands in for a sign when a program file is inspected
// offline.
func Uniform(n int) *Hardware {
	g := Geometry{Width: uniformRow * 768, Name: "uniform", Points: make([]uint32, n)}
	for i := range g.Points {
		g.Points[i] = uint32(i%uniformRow*768) | uint32(i/uniformRow*768)<<16
	}
	return FromGeometries(Config{'#'}, map[byte]Geometry{'#': g})
}

// Config returns the raw slot configuration.
func (h *Hardware) Config() Config {
	return h.config
}

// String renders the configuration as hex bytes.
func (h *Hardware) String() string {
	return h.config.String()
}

// UserString returns the configured letters with empty slots removed.
func (h *Hardware) UserString() string {
	var b strings.Builder
	for _, c := range h.config {
		if c != 0 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// LedDepth is the largest pixel count of any configured letter.
func (h *Hardware) LedDepth() int {
	return h.ledDepth
}

// PixelCount is the number of physically present pixels.
func (h *Hardware) PixelCount() int {
	return h.pixelCount
}

// Width is the size of the pixel index space, LedDepth per slot.
func (h *Hardware) Width() int {
	return h.ledDepth * Slots
}

// Mask returns the set of present pixels.
func (h *Hardware) Mask() pixelset.Set {
	return h.mask
}

// Size returns the extent of the layout in display units.
func (h *Hardware) Size() (width, height float64) {
	return h.maxX, h.maxY
}

// Point returns the position of pixel i and whether it is present.
func (h *Hardware) Point(i int) (Point, bool) {
	if i < 0 || i >= len(h.points) || !h.present[i] {
		return Point{}, false
	}
	return h.points[i], true
}

// DeviceLanes is the lane count of programs stored on the sign.
func (h *Hardware) DeviceLanes() int {
	return h.ledDepth
}

// FileLanes is the lane count of programs stored in files.
func (h *Hardware) FileLanes() int {
	return (h.pixelCount + wire.SlotsPerLane - 1) / wire.SlotsPerLane
}

// DeviceSlots maps every frame slot to the pixel with the same index.
func (h *Hardware) DeviceSlots() []pixelset.Set {
	slots := make([]pixelset.Set, h.DeviceLanes()*wire.SlotsPerLane)
	for i := range slots {
		slots[i] = pixelset.Singleton(h.Width(), i)
	}
	return slots
}

// FileSlots maps frame slots onto present pixels only, in index order, and
// leaves trailing slots empty.
func (h *Hardware) FileSlots() []pixelset.Set {
	slots := make([]pixelset.Set, h.FileLanes()*wire.SlotsPerLane)
	n := 0
	for i := range h.mask.Indices() {
		slots[n] = pixelset.Singleton(h.Width(), i)
		n++
	}
	for ; n < len(slots); n++ {
		slots[n] = pixelset.New(h.Width())
	}
	return slots
}

// Indices yields the present pixels in index order.
func (h *Hardware) Indices() iter.Seq[int] {
	return h.mask.Indices()
}
