// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport issues outbound HTTP requests with a hard wall-clock timeout.
//
// Every call site that talks to an inference backend goes through Transport.Do
// so that timeouts and network failures surface with the same typed errors:
//
//   - TimeoutError: the timer fired before the response headers arrived
//   - NetworkError: DNS failure, refused connection, reset, dropped body
//
// Transport performs no status code interpretation. The caller receives the raw
// Response and must Close it on every path.
//
// # Usage
//
//	t := transport.New().WithLogger(log)
//	resp, err := t.Do(ctx, transport.Request{
//	    Method: http.MethodGet,
//	    URL:    "http://127.0.0.1:11434/api/tags",
//	}, 60*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
package transport
