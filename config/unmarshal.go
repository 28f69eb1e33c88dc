// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File opens the file at the path produced by name.
func File(name Reader[string]) Reader[io.Reader] {
	return Map(name, func(ctx context.Context, path string) (io.Reader, error) {
		return os.Open(path)
	})
}

// UnmarshalYAML decodes the YAML document produced by r into a T.
func UnmarshalYAML[T any](r Reader[io.Reader]) Reader[T] {
	return unmarshal[T]("yaml", r, func(rd io.Reader, v any) error {
		return yaml.NewDecoder(rd).Decode(v)
	})
}

// UnmarshalJSON decodes the JSON document produced by r into a T.
func UnmarshalJSON[T any](r Reader[io.Reader]) Reader[T] {
	return unmarshal[T]("json", r, func(rd io.Reader, v any) error {
		return json.NewDecoder(rd).Decode(v)
	})
}

func unmarshal[T any](format string, r Reader[io.Reader], decode func(io.Reader, any) error) Reader[T] {
	return Map(r, func(ctx context.Context, rd io.Reader) (T, error) {
		if c, ok := rd.(io.Closer); ok {
			defer c.Close()
		}

		var v T
		err := decode(rd, &v)
		if err != nil {
			return v, fmt.Errorf("config: failed to unmarshal %s: %w", format, err)
		}
		return v, nil
	})
}
