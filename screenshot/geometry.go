package screenshot

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateClip is returned when a clip rectangle would have no area
var ErrDegenerateClip = errors.New("clip region is empty")

// BoundingBox is an element rectangle in page pixel coordinates
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge
func (b BoundingBox) Right() float64 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// Empty reports whether the box has no layout
func (b BoundingBox) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Size is a width/height pair, used for viewport and page extents
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClipRegion is the integer pixel rectangle handed to the capture call
type ClipRegion struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (c ClipRegion) String() string {
	return fmt.Sprintf("x=%d y=%d w=%d h=%d", c.X, c.Y, c.Width, c.Height)
}

// Union returns the smallest box enclosing every input box. ok is false when
// no boxes are given.
func Union(boxes ...BoundingBox) (box BoundingBox, ok bool) {
	if len(boxes) == 0 {
		return BoundingBox{}, false
	}
	x1, y1 := boxes[0].X, boxes[0].Y
	x2, y2 := boxes[0].Right(), boxes[0].Bottom()
	for _, b := range boxes[1:] {
		x1 = math.Min(x1, b.X)
		y1 = math.Min(y1, b.Y)
		x2 = math.Max(x2, b.Right())
		y2 = math.Max(y2, b.Bottom())
	}
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

// Clip expands box by padding on every side and clamps the result to
// [0,0]-[extent]. The returned rectangle never has a negative origin and never
// reaches past the extent.
func Clip(box BoundingBox, padding float64, extent Size) (ClipRegion, error) {
	maxX := math.Floor(extent.Width)
	maxY := math.Floor(extent.Height)

	x1 := math.Max(0, math.Floor(box.X-padding))
	y1 := math.Max(0, math.Floor(box.Y-padding))
	x2 := math.Min(maxX, math.Ceil(box.Right()+padding))
	y2 := math.Min(maxY, math.Ceil(box.Bottom()+padding))

	if x2 <= x1 || y2 <= y1 {
		return ClipRegion{}, fmt.Errorf("%w: box %+v in extent %+v", ErrDegenerateClip, box, extent)
	}
	return ClipRegion{
		X:      int(x1),
		Y:      int(y1),
		Width:  int(x2 - x1),
		Height: int(y2 - y1),
	}, nil
}
