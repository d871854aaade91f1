// Package graphing renders reconstructed process trees and utilization
// series: PNG branching diagrams, HTML and PNG utilization charts, and a
// terminal tree view.
package graphing

import (
	"fmt"
	"image/color"
	"io"

	"ProcGraph/pkg/branching"
	"ProcGraph/pkg/exporting"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"
)

// One point per pixel.
const branchingDPI = 72

// Branching colors: black lines on white.
var (
	BranchingForeground = color.Black
	BranchingBackground = color.White
)

// RenderBranching draws every layout segment onto a fresh canvas and encodes
// it as PNG. Layout coordinates grow downwards; the canvas is flipped to
// match.
func RenderBranching(w io.Writer, l *branching.Layout) error {
	width, height := max(l.Width, 1), max(l.Height, 1)
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(width), vg.Length(height)),
		vgimg.UseDPI(branchingDPI),
		vgimg.UseBackgroundColor(BranchingBackground),
	)
	c.SetColor(BranchingForeground)
	c.SetLineWidth(vg.Length(l.LineWidth))

	flip := func(x, y int) vg.Point {
		return vg.Point{X: vg.Length(x), Y: vg.Length(height - y)}
	}
	for _, s := range l.Segments {
		var p vg.Path
		p.Move(flip(s.X0, s.Y0))
		p.Line(flip(s.X1, s.Y1))
		c.Stroke(p)
	}

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode branching image: %w", err)
	}
	return nil
}

// SaveBranching writes the PNG to path, leaving nothing behind on failure.
func SaveBranching(path string, l *branching.Layout) error {
	return exporting.WriteFileAtomic(path, func(w io.Writer) error {
		return RenderBranching(w, l)
	})
}
