package link

// LineSplitter reassembles '\n' terminated lines from arbitrary read chunks.
// Lines longer than max bytes are discarded whole.
type LineSplitter struct {
	buf      []byte
	max      int
	overflow bool
}

func NewLineSplitter(max int) *LineSplitter {
	if max <= 0 {
		max = DefaultMaxLineBytes
	}
	return &LineSplitter{max: max}
}

// Feed consumes p and returns every line it completed (without the '\n') and
// the number of overlong lines it discarded.
func (s *LineSplitter) Feed(p []byte) ([][]byte, int) {
	var lines [][]byte
	dropped := 0
	for _, c := range p {
		if c == '\n' {
			if s.overflow {
				dropped++
			} else {
				line := make([]byte, len(s.buf))
				copy(line, s.buf)
				lines = append(lines, line)
			}
			s.buf = s.buf[:0]
			s.overflow = false
			continue
		}
		if s.overflow {
			continue
		}
		if len(s.buf) >= s.max {
			s.overflow = true
			s.buf = s.buf[:0]
			continue
		}
		s.buf = append(s.buf, c)
	}
	return lines, dropped
}

// Pending reports how many bytes of an unfinished line are buffered.
func (s *LineSplitter) Pending() int {
	return len(s.buf)
}
