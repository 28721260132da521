// Package contour extracts iso-contours of a 2D scalar field with the
// marching-squares algorithm.
//
// Contour points are given in (row, col) index space and are linearly
// interpolated along cell edges. Cells touching a NaN are skipped. Infinite
// values are allowed: the crossing is placed at the finite end of the edge,
// which is the limit of the linear interpolation.
package contour

import "math"

// Point is a contour vertex in fractional (row, col) index coordinates.
type Point struct {
	Row, Col float64
}

// Line is a contour polyline. A closed contour repeats its first point at the end.
type Line []Point

// Closed reports whether the line ends where it starts.
func (l Line) Closed() bool {
	return len(l) > 2 && l[0] == l[len(l)-1]
}

// edge identifies a grid edge: horizontal edges join (r, c) and (r, c+1),
// vertical edges join (r, c) and (r+1, c).
type edge struct {
	r, c     int
	vertical bool
}

type segment struct {
	from, to edge
}

// Find returns the contours of field at the given level. Values strictly
// above level count as "high". Ragged or degenerate fields (fewer than 2 rows
// or columns) have no contours.
func Find(field [][]float64, level float64) []Line {
	rows := len(field)
	if rows < 2 {
		return nil
	}
	cols := len(field[0])
	if cols < 2 {
		return nil
	}
	for _, r := range field {
		if len(r) != cols {
			return nil
		}
	}

	points := make(map[edge]Point)
	var segments []segment

	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			ul := field[r][c]
			ur := field[r][c+1]
			ll := field[r+1][c]
			lr := field[r+1][c+1]
			if math.IsNaN(ul) || math.IsNaN(ur) || math.IsNaN(ll) || math.IsNaN(lr) {
				continue
			}

			squareCase := 0
			if ul > level {
				squareCase |= 1
			}
			if ur > level {
				squareCase |= 2
			}
			if ll > level {
				squareCase |= 4
			}
			if lr > level {
				squareCase |= 8
			}
			if squareCase == 0 || squareCase == 15 {
				continue
			}

			top := edge{r, c, false}
			bottom := edge{r + 1, c, false}
			left := edge{r, c, true}
			right := edge{r, c + 1, true}

			add := func(from, to edge) {
				for _, e := range [2]edge{from, to} {
					if _, ok := points[e]; !ok {
						points[e] = edgePoint(field, e, level)
					}
				}
				segments = append(segments, segment{from, to})
			}

			switch squareCase {
			case 1:
				add(top, left)
			case 2:
				add(right, top)
			case 3:
				add(right, left)
			case 4:
				add(left, bottom)
			case 5:
				add(top, bottom)
			case 6:
				if connectHigh(ul, ur, ll, lr, level) {
					add(left, top)
					add(right, bottom)
				} else {
					add(right, top)
					add(left, bottom)
				}
			case 7:
				add(right, bottom)
			case 8:
				add(bottom, right)
			case 9:
				if connectHigh(ul, ur, ll, lr, level) {
					add(top, right)
					add(bottom, left)
				} else {
					add(top, left)
					add(bottom, right)
				}
			case 10:
				add(bottom, top)
			case 11:
				add(bottom, left)
			case 12:
				add(left, right)
			case 13:
				add(top, right)
			case 14:
				add(left, top)
			}
		}
	}

	return assemble(segments, points)
}

// connectHigh resolves the two saddle cases with the cell-center average.
func connectHigh(ul, ur, ll, lr, level float64) bool {
	return (ul+ur+ll+lr)/4 > level
}

func edgePoint(field [][]float64, e edge, level float64) Point {
	if e.vertical {
		f := edgeFraction(field[e.r][e.c], field[e.r+1][e.c], level)
		return Point{Row: float64(e.r) + f, Col: float64(e.c)}
	}
	f := edgeFraction(field[e.r][e.c], field[e.r][e.c+1], level)
	return Point{Row: float64(e.r), Col: float64(e.c) + f}
}

func edgeFraction(a, b, level float64) float64 {
	switch {
	case math.IsInf(a, 0) && math.IsInf(b, 0):
		return 0.5
	case math.IsInf(a, 0):
		return 1
	case math.IsInf(b, 0):
		return 0
	case a == b:
		return 0.5
	}
	return (level - a) / (b - a)
}

// assemble joins directed segments that share edges into polylines. Every
// edge starts at most one segment and ends at most one segment.
func assemble(segments []segment, points map[edge]Point) []Line {
	if len(segments) == 0 {
		return nil
	}

	startsAt := make(map[edge]int, len(segments))
	endsAt := make(map[edge]int, len(segments))
	for i, s := range segments {
		startsAt[s.from] = i
		endsAt[s.to] = i
	}

	used := make([]bool, len(segments))
	var lines []Line

	for i := range segments {
		if used[i] {
			continue
		}

		// walk back to the head of an open chain; a closed loop brings us back to i
		head := i
		for {
			prev, ok := endsAt[segments[head].from]
			if !ok || used[prev] || prev == i {
				break
			}
			head = prev
		}

		line := Line{points[segments[head].from]}
		for cur := head; ; {
			used[cur] = true
			line = append(line, points[segments[cur].to])
			next, ok := startsAt[segments[cur].to]
			if !ok || used[next] {
				break
			}
			cur = next
		}
		lines = append(lines, line)
	}

	return lines
}
