package admission

const (
	cannyShift = 15
	// tan(22.5 degrees) in cannyShift fixed point, rounded.
	tg22 int64 = 13573
)

const (
	edgeNone uint8 = iota
	edgeWeak
	edgeStrong
)

// Canny runs edge detection on a luminance plane and returns a binary map
// (255 for edge pixels, 0 otherwise). Gradients come from a 3x3 Sobel
// operator with replicated borders and are combined as |dx|+|dy|. Candidates
// above low survive non-maximum suppression; those above high seed the
// hysteresis walk that promotes connected candidates.
func Canny(gray []uint8, width, height, low, high int) []uint8 {
	if low > high {
		low, high = high, low
	}
	n := width * height
	edges := make([]uint8, n)
	if n == 0 {
		return edges
	}

	at := func(x, y int) int32 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return int32(gray[y*width+x])
	}

	dx := make([]int32, n)
	dy := make([]int32, n)
	mag := make([]int32, n)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			gy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*width + x
			dx[i], dy[i] = gx, gy
			mag[i] = abs32(gx) + abs32(gy)
		}
	}

	magAt := func(x, y int) int32 {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return mag[y*width+x]
	}

	state := make([]uint8, n)
	stack := make([]int, 0, n/16)
	lo, hi := int32(low), int32(high)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			m := mag[i]
			if m <= lo {
				continue
			}

			xs, ys := dx[i], dy[i]
			ax := int64(abs32(xs))
			ay := int64(abs32(ys)) << cannyShift
			tg22x := ax * tg22

			var keep bool
			if ay < tg22x {
				keep = m > magAt(x-1, y) && m >= magAt(x+1, y)
			} else if tg67x := tg22x + ax<<(cannyShift+1); ay > tg67x {
				keep = m > magAt(x, y-1) && m >= magAt(x, y+1)
			} else {
				s := 1
				if (xs ^ ys) < 0 {
					s = -1
				}
				keep = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !keep {
				continue
			}

			if m > hi {
				state[i] = edgeStrong
				stack = append(stack, i)
			} else {
				state[i] = edgeWeak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		edges[i] = 255
		x, y := i%width, i/width
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if state[j] == edgeWeak {
					state[j] = edgeStrong
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
