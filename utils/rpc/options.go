// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"net/http"
	"net/url"
)

// options collects the per-request header and query-param overrides used by
// SendJSONRequest; the Flashbots-style relay signature header and bundle
// query params are the primary consumers.
type options struct {
	headers     http.Header
	queryParams url.Values
}

// Option mutates the request options; WithHeader/WithQueryParam compose.
type Option func(*options)

// NewOptions applies a slice of Option to a fresh options value.
func NewOptions(ops []Option) *options {
	o := &options{
		headers:     make(http.Header),
		queryParams: make(url.Values),
	}
	for _, op := range ops {
		op(o)
	}
	return o
}

// WithHeader sets a single request header, e.g. X-Flashbots-Signature.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers.Set(key, value)
	}
}

// WithQueryParam sets a single URL query parameter.
func WithQueryParam(key, value string) Option {
	return func(o *options) {
		o.queryParams.Set(key, value)
	}
}
