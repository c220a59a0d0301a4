// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lnd

import "fmt"

// Error is a payment node failure. StatusCode is zero when the request
// never produced an HTTP response; Err then holds the transport error.
type Error struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("lnd: %s: %v", e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("lnd: %s (http %d, code %d)", e.Message, e.StatusCode, e.Code)
	}
	return "lnd: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }
