// Package ingest reads telemetry lines in the background and hands them to
// the per-tick consumer.
package ingest

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// ErrTimeout is returned by a Transport when no complete line arrived within
// its read timeout. It is expected and not a failure.
var ErrTimeout = errors.New("read timeout")

// maxPending bounds the bytes a SerialTransport buffers while waiting for a
// newline. A longer run is noise and is discarded.
const maxPending = 4096

// IsTimeout reports whether err is, or wraps, ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Transport is a line oriented telemetry source. Any error other than
// ErrTimeout means the source is gone.
type Transport interface {
	ReadLine() (string, error)
	Close() error
}

// SerialTransport reads lines from a serial port.
type SerialTransport struct {
	port    serial.Port
	name    string
	buf     []byte
	pending bytes.Buffer
}

// OpenSerial opens a serial port with the given baud rate and read timeout.
func OpenSerial(name string, baud int, readTimeout time.Duration) (*SerialTransport, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", name)
	}
	return &SerialTransport{
		port: port,
		name: name,
		buf:  make([]byte, 256),
	}, nil
}

// ReadLine returns the next complete line. Partial data is kept across
// timeouts. If more than maxPending bytes arrive without a newline they are
// dropped and ErrTimeout is returned, so callers regain control on a stream
// of garbage.
func (t *SerialTransport) ReadLine() (string, error) {
	return readLine(t.port, t.buf, &t.pending, t.name)
}

func readLine(r io.Reader, buf []byte, pending *bytes.Buffer, name string) (string, error) {
	for {
		if line, ok := takeLine(pending); ok {
			return line, nil
		}
		if pending.Len() > maxPending {
			pending.Reset()
			return "", ErrTimeout
		}
		n, err := r.Read(buf)
		if err != nil {
			return "", errors.Wrapf(err, "read %s", name)
		}
		if n == 0 {
			return "", ErrTimeout
		}
		pending.Write(buf[:n])
	}
}

func takeLine(pending *bytes.Buffer) (string, bool) {
	i := bytes.IndexByte(pending.Bytes(), '\n')
	if i < 0 {
		return "", false
	}
	line := string(pending.Next(i + 1))
	return strings.TrimRight(line, "\r\n"), true
}

// Close closes the serial port.
func (t *SerialTransport) Close() error {
	return t.port.Close()
}

// ReaderTransport reads lines from any reader, e.g. a recorded session.
// End of input is reported as io.EOF, which the loop treats as fatal.
type ReaderTransport struct {
	scanner *bufio.Scanner
	closer  io.Closer
	pace    time.Duration
}

// NewReaderTransport wraps r. If pace is non-zero each line is delayed by it
// to emulate the device rate.
func NewReaderTransport(r io.Reader, pace time.Duration) *ReaderTransport {
	t := &ReaderTransport{
		scanner: bufio.NewScanner(r),
		pace:    pace,
	}
	if c, ok := r.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// ReadLine returns the next line without its line ending, or io.EOF once
// the reader is exhausted.
func (t *ReaderTransport) ReadLine() (string, error) {
	if t.pace > 0 {
		time.Sleep(t.pace)
	}
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return "", errors.Wrap(err, "scan")
		}
		return "", io.EOF
	}
	return strings.TrimRight(t.scanner.Text(), "\r"), nil
}

// Close closes the underlying reader if it is an io.Closer.
func (t *ReaderTransport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
