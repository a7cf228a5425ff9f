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

// STREAMING: SSE framing for chat-completions backends

const (
	// sseDataPrefix marks the only meaningful SSE field for chat completions.
	sseDataPrefix = "data: "

	// sseDoneSentinel terminates the stream.
	sseDoneSentinel = "[DONE]"
)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader decodes the third-party streaming body.
//
// Only lines starting with "data: " are considered. "[DONE]" ends the stream;
// any other payload is parsed as JSON and choices[0].delta.content is emitted
// when non-empty. Unparseable payloads are skipped. A trailing fragment without
// a newline at end of stream is ignored.
type SSEReader struct {
	reader      *bufio.Reader
	accumulator strings.Builder
	chunks      int
	skipped     int
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// Process reads events and calls onChunk for each delta.
// Returns nil on [DONE] or end of stream.
func (s *SSEReader) Process(onChunk StreamCallback) error {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if done := s.handleLine(line, onChunk); done {
			return nil
		}
	}
}

func (s *SSEReader) handleLine(line []byte, onChunk StreamCallback) bool {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte(sseDataPrefix)) {
		// Blank separators, comments, event:, id:, retry:
		return false
	}

	payload := line[len(sseDataPrefix):]
	if string(payload) == sseDoneSentinel {
		return true
	}
	if !gjson.ValidBytes(payload) {
		s.skipped++
		return false
	}

	content := gjson.GetBytes(payload, "choices.0.delta.content")
	if content.Type == gjson.String && content.Str != "" {
		s.accumulator.WriteString(content.Str)
		s.chunks++
		if onChunk != nil {
			onChunk(content.Str)
		}
	}
	return false
}

// Accumulated returns all content delivered so far.
func (s *SSEReader) Accumulated() string {
	return s.accumulator.String()
}

// Chunks returns the number of chunks delivered.
func (s *SSEReader) Chunks() int {
	return s.chunks
}

// Skipped returns the number of unparseable data payloads.
func (s *SSEReader) Skipped() int {
	return s.skipped
}
