// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlain_Decode(t *testing.T) {
	t.Run("will emit the whole text at end of stream", func(t *testing.T) {
		t.Run("if no delimiter is configured", func(t *testing.T) {
			p := NewPlain()

			out, err := p.Decode([]byte("hello "))
			require.NoError(t, err)
			require.Empty(t, out)

			out, err = p.Decode([]byte("world"))
			require.NoError(t, err)
			require.Empty(t, out)

			out, err = p.Decode(nil)
			require.NoError(t, err)
			require.Equal(t, []any{"hello world"}, out)
		})
	})

	t.Run("will emit delimited pieces as they complete", func(t *testing.T) {
		p := NewPlain(Delimiter("\n"))

		out, err := p.Decode([]byte("one\ntw"))
		require.NoError(t, err)
		require.Equal(t, []any{"one"}, out)

		out, err = p.Decode([]byte("o\nthree"))
		require.NoError(t, err)
		require.Equal(t, []any{"two"}, out)

		out, err = p.Decode(nil)
		require.NoError(t, err)
		require.Equal(t, []any{"three"}, out)
	})

	t.Run("will emit nothing at end of stream", func(t *testing.T) {
		t.Run("if nothing was buffered", func(t *testing.T) {
			out, err := NewPlain().Decode(nil)
			require.NoError(t, err)
			require.Empty(t, out)
		})
	})

	t.Run("will return ErrInvalidText", func(t *testing.T) {
		t.Run("if the text is not valid utf-8", func(t *testing.T) {
			p := NewPlain()

			_, err := p.Decode([]byte{0xff, 0xfe})
			require.NoError(t, err)

			_, err = p.Decode(nil)
			require.ErrorIs(t, err, ErrInvalidText)
		})
	})
}

func TestJSON_Decode(t *testing.T) {
	t.Run("will decode the document at end of stream", func(t *testing.T) {
		j := JSONFactory()()

		out, err := j.Decode([]byte(`{"level":`))
		require.NoError(t, err)
		require.Empty(t, out)

		_, err = j.Decode([]byte(`"info"}`))
		require.NoError(t, err)

		out, err = j.Decode(nil)
		require.NoError(t, err)
		require.Equal(t, []any{map[string]any{"level": "info"}}, out)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the document is malformed", func(t *testing.T) {
			j := JSONFactory()()

			_, err := j.Decode([]byte(`{"level":`))
			require.NoError(t, err)

			_, err = j.Decode(nil)
			require.Error(t, err)
		})
	})
}
