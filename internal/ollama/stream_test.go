// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// collect returns a callback that records chunks in order.
func collect(dst *[]string) StreamCallback {
	return func(chunk string) { *dst = append(*dst, chunk) }
}

// =============================================================================
// NDJSON TESTS
// =============================================================================

func TestNDJSONReader_Basic(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("{\"response\":\"He\"}\n{\"response\":\"llo\"}\n{\"done\":true}\n"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"He", "llo"}, got)
	assert.Equal(t, "Hello", r.Accumulated())
	assert.Equal(t, 2, r.Chunks())
	assert.Equal(t, 0, r.Skipped())
}

func TestNDJSONReader_SkipsMalformedLine(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("{\"response\":\"He\"}\nnot-json\n{\"response\":\"llo\"}\n{\"done\":true}\n"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"He", "llo"}, got)
	assert.Equal(t, 1, r.Skipped())
}

func TestNDJSONReader_ByteAtATime(t *testing.T) {
	var got []string
	src := "{\"response\":\"a\"}\n{\"response\":\"b\"}\n{\"response\":\"c\",\"done\":true}\n"
	r := NewNDJSONReader(iotest.OneByteReader(strings.NewReader(src)))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestNDJSONReader_DoneStopsImmediately(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("{\"response\":\"x\"}\n{\"done\":true}\n{\"response\":\"ignored\"}\n"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"x"}, got)
}

func TestNDJSONReader_TrailingFragmentWithoutDone(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("{\"response\":\"a\"}\n  {\"response\":\"tail\"}  "))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"a", "tail"}, got)
}

func TestNDJSONReader_TrailingGarbageIgnored(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("{\"response\":\"a\"}\n{\"respo"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, r.Skipped())
}

func TestNDJSONReader_EmptyAndWhitespaceLines(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("\n   \n\r\n{\"response\":\"a\"}\r\n\n{\"done\":true}"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 0, r.Skipped())
}

func TestNDJSONReader_EmptyResponseNotEmitted(t *testing.T) {
	var got []string
	r := NewNDJSONReader(strings.NewReader("{\"response\":\"\"}\n{\"response\":42}\n{\"done\":true}\n"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Empty(t, got)
}

func TestNDJSONReader_ReadErrorIsFatal(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("{\"response\":\"a\"}\n"), iotest.ErrReader(boom))
	var got []string
	r := NewNDJSONReader(src)

	err := r.Process(collect(&got))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, got)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		json string
		want bool
	}{
		{`{"done":true}`, true},
		{`{"done":false}`, false},
		{`{"done":1}`, true},
		{`{"done":0}`, false},
		{`{"done":"yes"}`, true},
		{`{"done":""}`, false},
		{`{"done":null}`, false},
		{`{"done":{}}`, true},
		{`{}`, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, truthy(gjson.Get(tc.json, "done")), tc.json)
	}
}

// =============================================================================
// SSE TESTS
// =============================================================================

func TestSSEReader_Basic(t *testing.T) {
	var got []string
	r := NewSSEReader(strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\ndata: [DONE]\n\n"))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"A"}, got)
	assert.Equal(t, "A", r.Accumulated())
}

func TestSSEReader_DoneStopsImmediately(t *testing.T) {
	var got []string
	src := "data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n" +
		"data: [DONE]\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n"
	r := NewSSEReader(strings.NewReader(src))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"A"}, got)
}

func TestSSEReader_IgnoresNonDataAndMalformed(t *testing.T) {
	var got []string
	src := ": keep-alive\n" +
		"event: message\n" +
		"data: {broken\n" +
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n" +
		"data:{\"choices\":[{\"delta\":{\"content\":\"no-space\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\r\n" +
		"data: [DONE]\r\n"
	r := NewSSEReader(iotest.HalfReader(strings.NewReader(src)))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"B"}, got)
	assert.Equal(t, 1, r.Skipped())
}

func TestSSEReader_EOFWithoutDone(t *testing.T) {
	var got []string
	src := "data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"
	r := NewSSEReader(strings.NewReader(src))

	require.NoError(t, r.Process(collect(&got)))
	assert.Equal(t, []string{"A"}, got)
}
