package nstruct

// cursor is the parse engine's windowed byte reader (component C6). It
// tracks an absolute offset into a fixed backing buffer; callers pass an
// explicit limit with every read so a struct with a size callback can
// narrow the window for its own variable-length fields without disturbing
// the offset bookkeeping of its caller. Modeled on the Next/NextUintN
// cursor the teacher package hand-rolled per format; here it is generic
// over any declared type instead of being rewritten per struct.
type cursor struct {
	buf    []byte
	offset int
}

func newCursor(buf []byte, offset int) *cursor {
	return &cursor{buf: buf, offset: offset}
}

func (c *cursor) Offset() int { return c.offset }

func (c *cursor) setOffset(o int) { c.offset = o }

// next returns the next n bytes up to limit (an absolute offset into buf,
// exclusive) and advances the cursor. fieldPath is used only for error
// reporting.
func (c *cursor) next(limit int, n int, fieldPath string) ([]byte, error) {
	if n < 0 || c.offset+n > limit || c.offset+n > len(c.buf) {
		avail := limit - c.offset
		if len(c.buf)-c.offset < avail {
			avail = len(c.buf) - c.offset
		}
		if avail < 0 {
			avail = 0
		}
		return nil, &InsufficientBytesError{FieldPath: fieldPath, Needed: n, Available: avail}
	}
	b := c.buf[c.offset : c.offset+n]
	c.offset += n
	return b, nil
}

// remaining returns the number of unread bytes before limit.
func (c *cursor) remaining(limit int) int {
	r := limit - c.offset
	if r < 0 {
		return 0
	}
	return r
}
