// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package event defines the unit of data passed between pipeline stages.
//
// An [Event] carries a tree of nested maps addressed by dotted paths, e.g.
// "data" for the payload or "tmp.azqueue.id" for metadata a stage attached
// to the event for later use.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultDestination is the path payloads are written to when no
// other destination is configured.
const DefaultDestination = "data"

var (
	// ErrKeyNotFound is returned when a path does not exist in an [Event].
	ErrKeyNotFound = errors.New("event: key not found")

	// ErrNotAMap is returned when a path traverses a value which is not a map.
	ErrNotAMap = errors.New("event: path traverses a non-map value")
)

// Event is a single unit of data flowing through the pipeline.
type Event struct {
	UUID      uuid.UUID
	Timestamp time.Time
	Data      map[string]any
}

// New creates an [Event] with payload stored at destination.
// An empty destination defaults to [DefaultDestination].
func New(payload any, destination string) Event {
	if destination == "" {
		destination = DefaultDestination
	}
	ev := Event{
		UUID:      uuid.New(),
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{},
	}
	// destination is non-empty and Data is a fresh map so Set can not fail
	_ = ev.Set(payload, destination)
	return ev
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the value at path. The empty path returns the whole data tree.
func (e Event) Get(path string) (any, error) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return e.Data, nil
	}

	var cur any = e.Data
	for i, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotAMap, strings.Join(keys[:i], "."))
		}
		v, ok := m[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		cur = v
	}
	return cur, nil
}

// GetString returns the value at path if it is a string.
func (e Event) GetString(path string) (string, error) {
	v, err := e.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("event: value at %s is %T, not a string", path, v)
	}
	return s, nil
}

// Set stores value at path, creating intermediate maps as needed.
// Setting the empty path replaces the whole data tree and requires
// value to be a map[string]any.
func (e *Event) Set(value any, path string) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: root must be map[string]any, got %T", ErrNotAMap, value)
		}
		e.Data = m
		return nil
	}

	if e.Data == nil {
		e.Data = map[string]any{}
	}

	cur := e.Data
	for i, key := range keys[:len(keys)-1] {
		next, ok := cur[key]
		if !ok {
			m := map[string]any{}
			cur[key] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotAMap, strings.Join(keys[:i+1], "."))
		}
		cur = m
	}
	cur[keys[len(keys)-1]] = value
	return nil
}

// Delete removes the value at path. Deleting a missing path is not an error.
func (e *Event) Delete(path string) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		e.Data = map[string]any{}
		return nil
	}

	parent, err := e.Get(strings.Join(keys[:len(keys)-1], "."))
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAMap, strings.Join(keys[:len(keys)-1], "."))
	}
	delete(m, keys[len(keys)-1])
	return nil
}

type envelope struct {
	UUID      uuid.UUID      `json:"uuid"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// MarshalJSON encodes the event in its native envelope form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		UUID:      e.UUID,
		Timestamp: e.Timestamp,
		Data:      e.Data,
	})
}

// Unmarshal decodes an event previously encoded with [Event.MarshalJSON].
// A missing uuid or timestamp is generated.
func Unmarshal(b []byte) (Event, error) {
	var env envelope
	err := json.Unmarshal(b, &env)
	if err != nil {
		return Event{}, fmt.Errorf("event: failed to decode native event: %w", err)
	}
	if env.UUID == uuid.Nil {
		env.UUID = uuid.New()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	return Event{
		UUID:      env.UUID,
		Timestamp: env.Timestamp,
		Data:      env.Data,
	}, nil
}
