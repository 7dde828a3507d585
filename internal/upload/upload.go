// Package upload implements the UPLOAD sub-protocol: a 4-byte little-endian
// length prefix followed by exactly that many bytes of UTF-8 text, one
// "category|rarity|text" record per line.
//
// The frame carries no magic number, version or checksum. A reader that loses
// sync cannot recover, so any framing error ends the connection.
package upload

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/pkg/errors"
)

const (
	headerSize = 4

	// DefaultMaxFrameSize bounds the payload allocation for one upload.
	DefaultMaxFrameSize = 16 << 20
)

var (
	ErrTruncated     = errors.New("upload truncated")
	ErrFrameTooLarge = errors.New("upload frame too large")
)

// FrameSizeError reports an oversized frame together with its declared size.
type FrameSizeError struct {
	Size  uint32
	Limit uint32
}

func (e *FrameSizeError) Error() string {
	return ErrFrameTooLarge.Error()
}

func (e *FrameSizeError) Unwrap() error {
	return ErrFrameTooLarge
}

// Framer reads upload frames.
type Framer struct {
	MaxFrameSize uint32
}

func NewFramer(maxFrameSize uint32) *Framer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Framer{MaxFrameSize: maxFrameSize}
}

// ReadFrame reads one length-prefixed payload from r. r must be the same
// buffered reader the command lines came from.
func (f *Framer) ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, truncated(err, "read frame header failed")
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > f.MaxFrameSize {
		return nil, &FrameSizeError{Size: size, Limit: f.MaxFrameSize}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, truncated(err, "read frame payload failed")
	}
	return payload, nil
}

// Receive reads one frame and decodes its records.
func (f *Framer) Receive(r io.Reader) ([]fortune.Fortune, error) {
	payload, err := f.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(payload), nil
}

// Decode splits the payload on \r\n, \r and \n, drops blank lines and parses
// each remaining line. Lines that are not three-field records are kept as
// General/Common freeform text. Lines holding only spaces or tabs are dropped
// too, so they never count towards the number of fortunes added.
func Decode(payload []byte) []fortune.Fortune {
	text := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(string(payload))
	var out []fortune.Fortune
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, fortune.ParseLine(line))
	}
	return out
}

// Encode renders records as an upload payload.
func Encode(records []fortune.Fortune) []byte {
	lines := make([]string, len(records))
	for i, f := range records {
		lines[i] = f.Record()
	}
	return []byte(strings.Join(lines, "\n"))
}

// WriteFrame writes payload with its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "write frame header failed")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "write frame payload failed")
	}
	return nil
}

func truncated(err error, msg string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrTruncated, msg)
	}
	return errors.Wrap(err, msg)
}
