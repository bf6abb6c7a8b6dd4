package relayer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// maxFrameSize bounds a single NDJSON frame. A relayer batch is a few
// thousand packets at most; anything larger is a protocol violation.
const maxFrameSize = 8 * 1024 * 1024

// Stream is an open packet subscription. Recv blocks until the next frame,
// the stream ends, or the transport fails.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Stream{
		body:    body,
		scanner: scanner,
	}
}

// Recv returns the next decoded frame. io.EOF signals an orderly end of the
// stream; any other error is a transport or framing failure.
func (s *Stream) Recv() (StreamMessage, error) {
	var msg StreamMessage
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := sonic.Unmarshal(line, &msg); err != nil {
			return msg, fmt.Errorf("decode stream frame: %w", err)
		}
		return msg, nil
	}
	if err := s.scanner.Err(); err != nil {
		return msg, err
	}
	return msg, io.EOF
}

// Close abandons the subscription.
func (s *Stream) Close() error {
	return s.body.Close()
}
