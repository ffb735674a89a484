package core

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Distance returns the straight-line distance between two floor positions.
func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// MoveTowards returns the point reached by travelling from "from" towards
// "to" by at most maxStep. It never overshoots the target.
func MoveTowards(from, to orb.Point, maxStep float64) orb.Point {
	if maxStep <= 0 {
		return from
	}
	d := Distance(from, to)
	if d <= maxStep || d == 0 {
		return to
	}
	t := maxStep / d
	return orb.Point{
		from.X() + (to.X()-from.X())*t,
		from.Y() + (to.Y()-from.Y())*t,
	}
}

// clampToBound returns the closest point inside b.
func clampToBound(p orb.Point, b orb.Bound) orb.Point {
	x, y := p.X(), p.Y()
	if x < b.Min.X() {
		x = b.Min.X()
	} else if x > b.Max.X() {
		x = b.Max.X()
	}
	if y < b.Min.Y() {
		y = b.Min.Y()
	} else if y > b.Max.Y() {
		y = b.Max.Y()
	}
	return orb.Point{x, y}
}
