// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package decode turns raw message payloads into event data.
//
// A [Decoder] is fed a stream of chunks. Every call may yield zero or more
// decoded values and a nil chunk marks the end of the stream, at which point
// anything still buffered is emitted. Decoders are stateful and must not be
// shared between streams.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidText is returned by [Plain] for input which is not valid UTF-8.
var ErrInvalidText = errors.New("decode: invalid utf-8 text")

// Decoder decodes a stream of chunks into values.
type Decoder interface {
	Decode(chunk []byte) ([]any, error)
}

// DecoderFunc is an adapter to allow the use of ordinary functions as [Decoder]s.
type DecoderFunc func([]byte) ([]any, error)

// Decode implements the [Decoder] interface.
func (f DecoderFunc) Decode(chunk []byte) ([]any, error) {
	return f(chunk)
}

// Factory creates a fresh [Decoder] for every stream.
type Factory func() Decoder

// Plain decodes UTF-8 text into strings.
type Plain struct {
	delimiter []byte
	buf       bytes.Buffer
}

// PlainOption configures a [Plain] decoder.
type PlainOption func(*Plain)

// Delimiter splits the stream into one string per delimited piece.
func Delimiter(d string) PlainOption {
	return func(p *Plain) {
		p.delimiter = []byte(d)
	}
}

// NewPlain returns a [Plain] decoder. Without a [Delimiter] the whole
// stream is emitted as a single string at end of stream.
func NewPlain(opts ...PlainOption) *Plain {
	p := &Plain{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlainFactory returns a [Factory] of [Plain] decoders.
func PlainFactory(opts ...PlainOption) Factory {
	return func() Decoder {
		return NewPlain(opts...)
	}
}

// Decode implements the [Decoder] interface.
func (p *Plain) Decode(chunk []byte) ([]any, error) {
	if chunk == nil {
		return p.flush()
	}

	p.buf.Write(chunk)
	if len(p.delimiter) == 0 {
		return nil, nil
	}

	var out []any
	for {
		i := bytes.Index(p.buf.Bytes(), p.delimiter)
		if i < 0 {
			return out, nil
		}
		piece := p.buf.Next(i)
		p.buf.Next(len(p.delimiter))

		s, err := text(piece)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

func (p *Plain) flush() ([]any, error) {
	if p.buf.Len() == 0 {
		return nil, nil
	}
	defer p.buf.Reset()

	s, err := text(p.buf.Bytes())
	if err != nil {
		return nil, err
	}
	return []any{s}, nil
}

func text(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidText
	}
	return string(b), nil
}

// JSON buffers the whole stream and decodes it as a single JSON document
// at end of stream.
type JSON struct {
	buf bytes.Buffer
}

// JSONFactory returns a [Factory] of [JSON] decoders.
func JSONFactory() Factory {
	return func() Decoder {
		return &JSON{}
	}
}

// Decode implements the [Decoder] interface.
func (j *JSON) Decode(chunk []byte) ([]any, error) {
	if chunk != nil {
		j.buf.Write(chunk)
		return nil, nil
	}
	if j.buf.Len() == 0 {
		return nil, nil
	}
	defer j.buf.Reset()

	var v any
	err := json.Unmarshal(j.buf.Bytes(), &v)
	if err != nil {
		return nil, fmt.Errorf("decode: invalid json: %w", err)
	}
	return []any{v}, nil
}
