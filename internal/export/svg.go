// Package export renders recorded missions to files outside the terminal.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/buoysim/internal/telemetry"
)

type Point struct{ X, Y float64 }

// Points pairs two telemetry columns, dropping rows where either is NaN.
func Points(t *telemetry.Table, x, y string) ([]Point, error) {
	xs, ok := t.Column(x)
	if !ok {
		return nil, fmt.Errorf("export: no column %q", x)
	}
	ys, ok := t.Column(y)
	if !ok {
		return nil, fmt.Errorf("export: no column %q", y)
	}
	points := make([]Point, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		points = append(points, Point{xs[i], ys[i]})
	}
	return points, nil
}

// ProfileSVG draws a dive profile: depth against time with the surface at
// the top.
func ProfileSVG(t *telemetry.Table, width, height int) (string, error) {
	points, err := Points(t, "time", "depth")
	if err != nil {
		return "", err
	}
	for i := range points {
		points[i].Y = -points[i].Y
	}
	return TrajectoryToSVG(points, width, height, "#00ccff"), nil
}

// TrajectoryToSVG creates an SVG from trajectory data
func TrajectoryToSVG(points []Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}

	// Find bounds
	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.05
	maxX += rangeX * 0.05
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor))

	for i, p := range points {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)

		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
