package processing

// PageRange is an editable page range. Every edit re-clamps so that
// End >= Start >= 1 holds between edits.
type PageRange struct {
	start int
	end   int
}

// NewPageRange returns the range 1-1.
func NewPageRange() *PageRange {
	return &PageRange{start: 1, end: 1}
}

// SetStart moves the first page. An end page that would fall before it is
// pulled up to match.
func (r *PageRange) SetStart(n int) {
	if n < 1 {
		n = 1
	}
	r.start = n
	if r.end < r.start {
		r.end = r.start
	}
}

// SetEnd moves the last page. Values before the start page clamp to it.
func (r *PageRange) SetEnd(n int) {
	if n < r.start {
		n = r.start
	}
	r.end = n
}

// Start returns the first page.
func (r *PageRange) Start() int { return r.start }

// End returns the last page.
func (r *PageRange) End() int { return r.end }

// Request builds a submission for path over the current range.
func (r *PageRange) Request(path string, mode Mode) Request {
	return Request{FilePath: path, StartPage: r.start, EndPage: r.end, Mode: mode}
}
