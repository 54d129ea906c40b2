package convergence

// ring is a fixed-capacity FIFO of scores; pushing onto a full ring drops
// the oldest entry.
type ring struct {
	buf   []float64
	start int
	n     int
}

func newRing(capacity int) ring {
	return ring{buf: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	c := len(r.buf)
	if r.n < c {
		r.buf[(r.start+r.n)%c] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % c
}

func (r *ring) len() int { return r.n }

func (r *ring) allAtLeast(min float64) bool {
	c := len(r.buf)
	for i := 0; i < r.n; i++ {
		if r.buf[(r.start+i)%c] < min {
			return false
		}
	}
	return true
}

// values returns the entries oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, r.n)
	c := len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%c]
	}
	return out
}
