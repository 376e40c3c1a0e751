package uart

import (
	"context"

	"tinygo.org/x/drivers"
)

// Stream adapts a Context to io.Reader, io.Writer and the tinygo drivers.UART interface, for code
// that has no context to pass. Calls run with the configured timeout.
type Stream struct {
	c *Context
}

var _ drivers.UART = Stream{}

// Stream returns a stream over c.
func (c *Context) Stream() Stream {
	return Stream{c: c}
}

// Read returns the bytes already buffered, waiting for at least one if none are. Like a serial
// port it never returns io.EOF.
func (s Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	want := len(p)
	if n := s.Buffered(); n > 0 && n < want {
		want = n
	} else if n == 0 {
		want = 1
	}
	return s.c.Read(context.Background(), p[:want])
}

// Write sends p.
func (s Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.c.Write(context.Background(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Buffered returns how many received bytes are waiting, or zero if that cannot be determined.
func (s Stream) Buffered() int {
	var n int
	//nolint:errcheck
	s.c.Do(context.Background(), "buffered", 0, func(ctx context.Context) error {
		var err error
		n, err = s.c.driver.Buffered(s.c.port)
		return err
	})
	return n
}
