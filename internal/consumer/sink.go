package consumer

import (
	"bufio"
	"io"
	"strconv"
	"sync"
)

// Frame is one consumed frame, copied out of shared memory.
type Frame struct {
	Iteration int
	Slot      int
	Segment   string
	Values    []float32
}

// Sink receives frames after their slot has been released. It owns Values.
type Sink interface {
	Consume(f Frame) error
}

// TextSink writes one line per frame: the source segment, the iteration
// index and every value in order.
type TextSink struct {
	w   *bufio.Writer
	buf []byte
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: bufio.NewWriter(w)}
}

func (s *TextSink) Consume(f Frame) error {
	b := s.buf[:0]
	b = append(b, "received message in buffer "...)
	b = strconv.AppendInt(b, int64(f.Slot+1), 10)
	b = append(b, " ("...)
	b = append(b, f.Segment...)
	b = append(b, ") iteration "...)
	b = strconv.AppendInt(b, int64(f.Iteration), 10)
	b = append(b, ":\t"...)

	for _, v := range f.Values {
		b = strconv.AppendFloat(b, float64(v), 'f', 6, 32)
		b = append(b, ", "...)
	}

	b = append(b, '\n')
	s.buf = b

	if _, err := s.w.Write(b); err != nil {
		return err
	}

	return s.w.Flush()
}

// RecordingSink keeps every frame in memory.
type RecordingSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *RecordingSink) Consume(f Frame) error {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *RecordingSink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}
