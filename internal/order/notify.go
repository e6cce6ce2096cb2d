package order

import (
	"context"
	"errors"

	"ms-rental/internal/models"
)

// Notifiers fans one event out to several sinks. Every sink is tried.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event models.OrderEvent) error {
	var errs []error
	for _, sink := range n {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
