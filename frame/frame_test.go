package frame_test

import (
	"bytes"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/walmux/walmux/frame"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&FrameSuite{})

type FrameSuite struct{}

func (s *FrameSuite) TestRoundTrip(c *C) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		[]byte("world"),
		bytes.Repeat([]byte{0xAB}, 1000),
	}
	types := []frame.Type{frame.Full, frame.First, frame.Middle, frame.Last}
	for i, p := range payloads {
		_, err := w.WriteFrame(types[i], p)
		c.Assert(err, IsNil)
	}

	r := frame.NewReader(bytes.NewReader(buf.Bytes()))
	for i, p := range payloads {
		typ, got, err := r.ReadFrame()
		c.Assert(err, IsNil)
		c.Assert(typ, Equals, types[i])
		c.Assert(got, DeepEquals, p)
	}
	_, _, err := r.ReadFrame()
	c.Assert(err, Equals, frame.ErrEndOfValidData)
}

func (s *FrameSuite) TestCapacity(c *C) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	c.Assert(w.Capacity(), Equals, frame.MaxPayload)

	_, err := w.WriteFrame(frame.Full, make([]byte, 100))
	c.Assert(err, IsNil)
	c.Assert(w.Capacity(), Equals, frame.MaxPayload-100-frame.HeaderSize)

	// An oversized payload is refused without corrupting block state.
	_, err = w.WriteFrame(frame.Full, make([]byte, w.Capacity()+1))
	c.Assert(err, NotNil)
	_, err = w.WriteFrame(frame.Full, make([]byte, w.Capacity()))
	c.Assert(err, IsNil)
}

func (s *FrameSuite) TestBlockPadding(c *C) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)

	// Leave 3 bytes in the first block: too small for a header.
	first := make([]byte, frame.MaxPayload-3)
	_, err := w.WriteFrame(frame.Full, first)
	c.Assert(err, IsNil)
	c.Assert(w.Capacity(), Equals, frame.MaxPayload)

	n, err := w.WriteFrame(frame.Full, []byte("tail"))
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 3+frame.HeaderSize+4)
	c.Assert(buf.Len(), Equals, frame.BlockSize+frame.HeaderSize+4)

	r := frame.NewReader(bytes.NewReader(buf.Bytes()))
	_, got, err := r.ReadFrame()
	c.Assert(err, IsNil)
	c.Assert(len(got), Equals, len(first))
	_, got, err = r.ReadFrame()
	c.Assert(err, IsNil)
	c.Assert(string(got), Equals, "tail")
	_, _, err = r.ReadFrame()
	c.Assert(err, Equals, frame.ErrEndOfValidData)
}

func (s *FrameSuite) TestExactBlockFill(c *C) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)

	_, err := w.WriteFrame(frame.Full, make([]byte, frame.MaxPayload))
	c.Assert(err, IsNil)
	c.Assert(buf.Len(), Equals, frame.BlockSize)
	c.Assert(w.Capacity(), Equals, frame.MaxPayload)

	_, err = w.WriteFrame(frame.Full, []byte("next-block"))
	c.Assert(err, IsNil)

	r := frame.NewReader(bytes.NewReader(buf.Bytes()))
	_, got, err := r.ReadFrame()
	c.Assert(err, IsNil)
	c.Assert(len(got), Equals, frame.MaxPayload)
	_, got, err = r.ReadFrame()
	c.Assert(err, IsNil)
	c.Assert(string(got), Equals, "next-block")
}

func (s *FrameSuite) TestCorruptionMidFile(c *C) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	_, err := w.WriteFrame(frame.Full, make([]byte, frame.MaxPayload))
	c.Assert(err, IsNil)
	_, err = w.WriteFrame(frame.Full, []byte("tail"))
	c.Assert(err, IsNil)

	// Flip one payload byte inside the fully written first block.
	raw := append([]byte(nil), buf.Bytes()...)
	raw[100] ^= 0xFF

	r := frame.NewReader(bytes.NewReader(raw))
	_, _, err = r.ReadFrame()
	c.Assert(err, Equals, frame.ErrCorruptFrame)
}

func (s *FrameSuite) TestTornTail(c *C) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	_, err := w.WriteFrame(frame.Full, []byte("intact"))
	c.Assert(err, IsNil)
	_, err = w.WriteFrame(frame.Full, []byte("torn-away-by-a-crash"))
	c.Assert(err, IsNil)

	raw := buf.Bytes()
	for _, cut := range []int{
		len(raw) - 1,                     // mid payload
		len(raw) - 21,                    // mid header
		frame.HeaderSize + len("intact"), // exact frame boundary
	} {
		r := frame.NewReader(bytes.NewReader(raw[:cut]))
		_, got, err := r.ReadFrame()
		c.Assert(err, IsNil)
		c.Assert(string(got), Equals, "intact")
		_, _, err = r.ReadFrame()
		c.Assert(err, Equals, frame.ErrEndOfValidData)
	}
}

func (s *FrameSuite) TestZeroBytesNeverParse(c *C) {
	// A short run of zeros reads as a torn tail.
	r := frame.NewReader(bytes.NewReader(make([]byte, 100)))
	_, _, err := r.ReadFrame()
	c.Assert(err, Equals, frame.ErrEndOfValidData)

	// A fully written block of zeros is corruption, not padding.
	r = frame.NewReader(bytes.NewReader(make([]byte, frame.BlockSize)))
	_, _, err = r.ReadFrame()
	c.Assert(err, Equals, frame.ErrCorruptFrame)

	// An empty stream ends immediately.
	r = frame.NewReader(bytes.NewReader(nil))
	_, _, err = r.ReadFrame()
	c.Assert(err, Equals, frame.ErrEndOfValidData)
}
