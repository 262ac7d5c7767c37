// Package rpc implements the JSON-RPC 2.0 base protocol used by LSP:
// Content-Length framed messages over a byte stream.
package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const (
	headerContentLength = "content-length"
	headerContentType   = "content-type"

	// DefaultMaxMessageSize bounds a single frame body.
	DefaultMaxMessageSize = 10 * 1024 * 1024
)

var (
	headerSeparator = []byte{'\r', '\n', '\r', '\n'}

	// ErrMissingContentLength is returned for a header block without Content-Length.
	ErrMissingContentLength = errors.New("rpc: missing Content-Length header")
	// ErrInvalidHeader is returned for a header line that is not "Name: value".
	ErrInvalidHeader = errors.New("rpc: invalid header")
	// ErrUnsupportedCharset is returned when Content-Type names a charset other than utf-8.
	ErrUnsupportedCharset = errors.New("rpc: unsupported charset")
)

// EncodeMessage serializes a message to LSP wire format with Content-Length header.
func EncodeMessage(msg any) ([]byte, error) {
	content, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal message: %w", err)
	}

	frame := make([]byte, 0, len(content)+32)
	frame = fmt.Appendf(frame, "Content-Length: %d\r\n\r\n", len(content))
	frame = append(frame, content...)
	return frame, nil
}

// parseHeader reads the header block (without the trailing blank line) and
// returns the declared content length.
func parseHeader(header []byte) (int, error) {
	contentLength := -1
	for _, line := range strings.Split(string(header), "\r\n") {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(name)) {
		case headerContentLength:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("%w: Content-Length %q", ErrInvalidHeader, value)
			}
			contentLength = n
		case headerContentType:
			if err := checkContentType(value); err != nil {
				return 0, err
			}
		}
	}

	if contentLength < 0 {
		return 0, ErrMissingContentLength
	}
	return contentLength, nil
}

func checkContentType(value string) error {
	for _, param := range strings.Split(value, ";")[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(param), "=")
		if !strings.EqualFold(key, "charset") {
			continue
		}
		val = strings.ToLower(strings.Trim(val, `"`))
		if val != "utf-8" && val != "utf8" {
			return fmt.Errorf("%w: %s", ErrUnsupportedCharset, val)
		}
	}
	return nil
}

// Split is a bufio.SplitFunc that splits LSP messages by Content-Length.
// The returned token is the message body; partial data is buffered until the
// whole body is available.
func Split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	header, content, found := bytes.Cut(data, headerSeparator)
	if !found {
		if atEOF && len(bytes.TrimSpace(data)) > 0 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return 0, nil, nil
	}

	contentLength, err := parseHeader(header)
	if err != nil {
		return 0, nil, err
	}

	if len(content) < contentLength {
		if atEOF {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return 0, nil, nil
	}

	totalLength := len(header) + len(headerSeparator) + contentLength
	return totalLength, content[:contentLength], nil
}

// Reader reads framed message bodies from a byte stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader creates a frame reader. maxSize <= 0 selects DefaultMaxMessageSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Split(Split)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxSize)), maxSize)
	return &Reader{scanner: scanner}
}

// ReadFrame returns the next message body. It returns io.EOF when the stream
// ends cleanly between frames.
func (r *Reader) ReadFrame() ([]byte, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	body := r.scanner.Bytes()
	frame := make([]byte, len(body))
	copy(frame, body)
	return frame, nil
}

// Writer writes framed messages. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a frame writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes msg and writes it as a single frame.
func (w *Writer) Write(msg any) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(frame)
	return err
}
