// Package plot provides plot geometry on a torus and the plot's climate state.
package plot

import (
	"math"
)

// Plot is a rectangular stand that wraps at its edges.
type Plot struct {
	LenX, LenY float64 // m
	Latitude   float64 // degrees

	Climate Climate

	atanTable []int16 // fast azimuth lookup, see AzimuthDeg
}

const atanTableSize = 1024

// New creates a plot of the given size.
func New(lenX, lenY, latitude float64) *Plot {
	p := &Plot{LenX: lenX, LenY: lenY, Latitude: latitude}
	p.atanTable = make([]int16, atanTableSize+1)
	for i := range p.atanTable {
		// angle in degrees of atan(ratio) for ratio in [0, 1]
		p.atanTable[i] = int16(math.Round(math.Atan(float64(i)/atanTableSize) * 180 / math.Pi))
	}
	return p
}

// Area returns the plot area in hectares.
func (p *Plot) Area() float64 {
	return p.LenX * p.LenY / 10000
}

// Delta returns the shortest torus offset from (x1,y1) to (x2,y2).
func (p *Plot) Delta(x1, y1, x2, y2 float64) (dx, dy float64) {
	dx = x2 - x1
	dy = y2 - y1

	if dx > p.LenX/2 {
		dx -= p.LenX
	} else if dx < -p.LenX/2 {
		dx += p.LenX
	}
	if dy > p.LenY/2 {
		dy -= p.LenY
	} else if dy < -p.LenY/2 {
		dy += p.LenY
	}

	return dx, dy
}

// Distance returns the torus-corrected distance between two points.
func (p *Plot) Distance(x1, y1, x2, y2 float64) float64 {
	dx, dy := p.Delta(x1, y1, x2, y2)
	return math.Sqrt(dx*dx + dy*dy)
}

// Azimuth returns the direction from (x1,y1) to (x2,y2) in radians clockwise from
// north (+Y), in [0, 2π).
func (p *Plot) Azimuth(x1, y1, x2, y2 float64) float64 {
	dx, dy := p.Delta(x1, y1, x2, y2)
	return AzimuthOf(dx, dy)
}

// AzimuthOf returns the azimuth of an offset in radians clockwise from north, in [0, 2π).
func AzimuthOf(dx, dy float64) float64 {
	a := math.Atan2(dx, dy)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// AzimuthDeg is a fast integer-degree variant of Azimuth, accurate to about a degree.
func (p *Plot) AzimuthDeg(x1, y1, x2, y2 float64) int {
	dx, dy := p.Delta(x1, y1, x2, y2)
	if dx == 0 && dy == 0 {
		return 0
	}
	ax, ay := math.Abs(dx), math.Abs(dy)

	// angle from the nearer axis, 0..45 via the table
	var deg int
	if ax <= ay {
		deg = int(p.atanTable[int(ax/ay*atanTableSize)])
	} else {
		deg = 90 - int(p.atanTable[int(ay/ax*atanTableSize)])
	}

	switch {
	case dx >= 0 && dy >= 0:
		// first quadrant, measured from north
	case dx >= 0 && dy < 0:
		deg = 180 - deg
	case dx < 0 && dy < 0:
		deg = 180 + deg
	default:
		deg = 360 - deg
	}
	return deg % 360
}

// WrapX wraps an x coordinate onto the plot.
func (p *Plot) WrapX(x float64) float64 {
	return wrap(x, p.LenX)
}

// WrapY wraps a y coordinate onto the plot.
func (p *Plot) WrapY(y float64) float64 {
	return wrap(y, p.LenY)
}

func wrap(v, l float64) float64 {
	v = math.Mod(v, l)
	if v < 0 {
		v += l
	}
	return v
}
