// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// =============================================================================
// NDJSON STREAM READER
// =============================================================================

// NDJSONReader decodes the local-mode streaming body: one JSON object per line.
//
// A line that fails to parse is skipped and the stream continues. An object
// with a truthy "done" ends the stream at once, leaving any buffered data
// unread. If the connection closes without "done", the trailing fragment is
// parsed best-effort as a final object.
type NDJSONReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	chunks      int
	skipped     int
}

// NewNDJSONReader creates a new NDJSON reader from an io.Reader.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	return &NDJSONReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and calls onChunk for each non-empty "response".
// Blocks until "done", end of stream, or a read error.
func (s *NDJSONReader) Process(onChunk StreamCallback) error {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Connection closed without done: flush what is left.
				s.handleLine(line, onChunk)
				return nil
			}
			return err
		}
		if done := s.handleLine(line, onChunk); done {
			return nil
		}
	}
}

// handleLine emits the line's response and reports whether it carried done.
func (s *NDJSONReader) handleLine(line []byte, onChunk StreamCallback) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	if !gjson.ValidBytes(line) {
		// Partial or corrupt fragment
		s.skipped++
		return false
	}

	obj := gjson.ParseBytes(line)
	if response := obj.Get("response"); response.Type == gjson.String && response.Str != "" {
		s.emit(response.Str, onChunk)
	}
	return truthy(obj.Get("done"))
}

func (s *NDJSONReader) emit(chunk string, onChunk StreamCallback) {
	s.accumulator.WriteString(chunk)
	s.chunks++
	if onChunk != nil {
		onChunk(chunk)
	}
}

// Accumulated returns all content delivered so far.
func (s *NDJSONReader) Accumulated() string {
	return s.accumulator.String()
}

// Chunks returns the number of chunks delivered.
func (s *NDJSONReader) Chunks() int {
	return s.chunks
}

// Skipped returns the number of unparseable lines.
func (s *NDJSONReader) Skipped() int {
	return s.skipped
}

// truthy mirrors JSON truthiness: false, null, 0 and "" are false.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		return true
	default:
		return false
	}
}
