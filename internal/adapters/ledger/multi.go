// Package ledger fans trade rows out to several sinks.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// Multi records every row in each sink. A failing sink does not stop the others.
type Multi struct {
	sinks []ports.Ledger
}

// NewMulti creates a Multi over the non-nil sinks.
func NewMulti(sinks ...ports.Ledger) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Record writes rec to all sinks and joins their errors.
func (m *Multi) Record(ctx context.Context, rec domain.LedgerRecord) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("ledger sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
