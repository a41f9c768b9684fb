package rad

import "io"

// countingReader wraps an io.Reader and tracks the number of bytes that have
// passed through Read. It is used to recover exact header/tag-section byte
// offsets without seeking on the original file handle.
type countingReader struct {
	r io.Reader
	n int64
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{r: r}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// N returns the number of bytes read so far.
func (c *countingReader) N() int64 {
	return c.n
}
