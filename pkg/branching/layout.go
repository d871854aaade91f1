package branching

import (
	"errors"
	"fmt"
	"math"
)

var ErrLayout = errors.New("invalid layout dimensions")

const (
	DefaultLineWidth  = 1
	DefaultSeparation = 5
)

// Segment is a straight line in pixel coordinates, origin top-left.
type Segment struct {
	X0, Y0, X1, Y1 int
	PID            int32
	Connector      bool // vertical link from a child to its parent's row
}

// Layout is the full drawing: canvas size plus segments.
type Layout struct {
	Width      int
	Height     int
	LineWidth  int
	Separation int
	Segments   []Segment
}

// RowY is the vertical pixel offset of row i.
func RowY(i, lineWidth, separation int) int {
	return lineWidth*i + separation*(i+1)
}

// Layout positions one horizontal line per row, from creation to exit, and
// one vertical connector per non-root row from its start up to its parent.
func (t *Tree) Layout(lineWidth, separation int) (*Layout, error) {
	if lineWidth <= 0 || separation < 0 {
		return nil, fmt.Errorf("%w: line width %d, separation %d", ErrLayout, lineWidth, separation)
	}
	n := t.Len()
	l := &Layout{
		Width:      int(math.Ceil(t.Span/t.Resolution)) + 2*separation,
		Height:     n*lineWidth + (n+1)*separation,
		LineWidth:  lineWidth,
		Separation: separation,
		Segments:   make([]Segment, 0, 2*n),
	}

	for _, r := range t.Rows() {
		y := RowY(r.Index, lineWidth, separation)
		x0 := separation + int(r.StartUnits)
		l.Segments = append(l.Segments, Segment{
			X0: x0, Y0: y,
			X1: separation + int(r.EndUnits), Y1: y,
			PID: r.PID,
		})
		if r.ParentIndex >= 0 {
			l.Segments = append(l.Segments, Segment{
				X0: x0, Y0: y,
				X1: x0, Y1: RowY(r.ParentIndex, lineWidth, separation),
				PID:       r.PID,
				Connector: true,
			})
		}
	}
	return l, nil
}
