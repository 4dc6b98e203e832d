// Package sink delivers matched message records to their destinations.
package sink

import (
	"context"
	"errors"
	"fmt"

	"chat_watcher/internal/model"
)

// Sink receives one record per matched rule.
type Sink interface {
	Append(ctx context.Context, rec model.MessageRecord) error
}

// Named pairs a sink with the name used in logs and metrics.
type Named struct {
	Name string
	Sink Sink
}

// ObserveFunc is called once per sink and record with the delivery result.
type ObserveFunc func(sink string, err error)

// Multi fans a record out to every configured sink. A failing sink does not
// prevent delivery to the others.
type Multi struct {
	sinks   []Named
	observe ObserveFunc
}

// NewMulti returns a fan-out over sinks in the given order. observe may be nil.
func NewMulti(observe ObserveFunc, sinks ...Named) *Multi {
	return &Multi{sinks: sinks, observe: observe}
}

// Names lists the configured sinks.
func (m *Multi) Names() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name
	}
	return names
}

// Append delivers rec to all sinks and joins their errors.
func (m *Multi) Append(ctx context.Context, rec model.MessageRecord) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Sink.Append(ctx, rec)
		if m.observe != nil {
			m.observe(s.Name, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
