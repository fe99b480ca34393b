// Package eventio reads and writes streams of detector events.
//
// A stream is a sequence of frames, each a 4-byte big-endian payload length
// followed by one msgpack-encoded Event.
package eventio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds the payload length accepted by Reader.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("eventio: frame too large")

// Event is one detector hit.
type Event struct {
	ID          uint64  `msgpack:"id"`
	Detector    int     `msgpack:"det"`
	Element     int     `msgpack:"el"`
	ADC         float64 `msgpack:"adc"`
	Energy      float64 `msgpack:"energy,omitempty"`
	Temperature float64 `msgpack:"temp,omitempty"`
	Calibrated  bool    `msgpack:"cal,omitempty"`
}

// Source yields events until io.EOF.
type Source interface {
	Next() (Event, error)
}

// Sink consumes events.
type Sink interface {
	Write(ev Event) error
}

// Reader decodes a framed event stream.
type Reader struct {
	r      *bufio.Reader
	header [4]byte
	buf    []byte
}

// NewReader returns a reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF at a clean end of stream. A
// stream ending inside a frame returns io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		return Event{}, err
	}

	n := binary.BigEndian.Uint32(r.header[:])
	if n > MaxFrameSize {
		return Event{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]

	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Event{}, err
	}

	var ev Event
	if err := msgpack.Unmarshal(r.buf, &ev); err != nil {
		return Event{}, fmt.Errorf("eventio: decode event: %w", err)
	}

	return ev, nil
}

// Writer encodes a framed event stream. Call Flush when done.
type Writer struct {
	w      *bufio.Writer
	header [4]byte
}

// NewWriter returns a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one event frame.
func (w *Writer) Write(ev Event) error {
	payload, err := msgpack.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("eventio: encode event: %w", err)
	}

	binary.BigEndian.PutUint32(w.header[:], uint32(len(payload)))

	if _, err := w.w.Write(w.header[:]); err != nil {
		return err
	}

	_, err = w.w.Write(payload)
	return err
}

// Flush writes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// File is a Source over an event file.
type File struct {
	*Reader
	f *os.File
}

// Open opens an event file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventio: %w", err)
	}
	return &File{Reader: NewReader(f), f: f}, nil
}

// Close closes the file.
func (f *File) Close() error {
	return f.f.Close()
}

// FileWriter is a Sink writing an event file.
type FileWriter struct {
	*Writer
	f *os.File
}

// Create creates or truncates an event file.
func Create(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("eventio: %w", err)
	}
	return &FileWriter{Writer: NewWriter(f), f: f}, nil
}

// Close flushes and closes the file.
func (f *FileWriter) Close() error {
	flushErr := f.Flush()
	closeErr := f.f.Close()
	return errors.Join(flushErr, closeErr)
}

// SliceSource yields the events of a slice.
type SliceSource struct {
	Events []Event
	pos    int
}

// NewSliceSource returns a source over events.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{Events: events}
}

// Next returns the next event or io.EOF.
func (s *SliceSource) Next() (Event, error) {
	if s.pos >= len(s.Events) {
		return Event{}, io.EOF
	}
	ev := s.Events[s.pos]
	s.pos++
	return ev, nil
}

// SliceSink collects written events.
type SliceSink struct {
	Events []Event
}

// Write appends ev.
func (s *SliceSink) Write(ev Event) error {
	s.Events = append(s.Events, ev)
	return nil
}
