package llm

import (
	"bufio"
	"bytes"
	"io"
)

// sseScanner reads the data payloads of a Server-Sent Events stream. Lines
// other than "data:" (comments, event names, blank separators) are skipped.
type sseScanner struct {
	scanner *bufio.Scanner
	data    []byte
}

func newSSEScanner(r io.Reader) *sseScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &sseScanner{scanner: s}
}

// Scan advances to the next data line.
func (s *sseScanner) Scan() bool {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		s.data = bytes.TrimSpace(line[len("data:"):])
		if len(s.data) == 0 || bytes.Equal(s.data, []byte("[DONE]")) {
			continue
		}
		return true
	}
	return false
}

// Data returns the payload of the last scanned data line.
func (s *sseScanner) Data() []byte {
	return s.data
}

func (s *sseScanner) Err() error {
	return s.scanner.Err()
}
