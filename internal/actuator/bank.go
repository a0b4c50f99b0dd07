package actuator

// Bank is the fixed array of engines assembled into one vehicle. It is built
// once and shared by reference between the controller and the simulator.
type Bank []*Engine

func NewBank(n int, extension float64) Bank {
	b := make(Bank, n)
	for i := range b {
		b[i] = NewEngine(extension)
	}
	return b
}

// Extensions copies the current extension of every engine into dst, growing
// it as needed, and returns it. A nil engine reads as NaN.
func (b Bank) Extensions(dst []float64) []float64 {
	if cap(dst) < len(b) {
		dst = make([]float64, len(b))
	}
	dst = dst[:len(b)]
	for i, e := range b {
		if e == nil {
			dst[i] = nan
			continue
		}
		dst[i] = e.Extension()
	}
	return dst
}

// Complete reports whether every slot holds an engine.
func (b Bank) Complete() bool {
	if len(b) == 0 {
		return false
	}
	for _, e := range b {
		if e == nil {
			return false
		}
	}
	return true
}
