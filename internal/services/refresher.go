package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
)

// Refresher reloads providers and orders after a successful drain so the
// local store reflects server ids and server-side changes.
type Refresher struct {
	Providers *ProviderService
	Orders    *OrderService
	Timeout   time.Duration
	// Done, when set, runs after each refresh with its first error.
	Done func(error)
}

func (r *Refresher) OnStatusChange(models.ConnectionStatus) {}

func (r *Refresher) OnSyncComplete(success bool) {
	if !success {
		return
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var first error
	if r.Providers != nil {
		if _, err := r.Providers.List(ctx); err != nil {
			slog.Warn("services: refresh providers", "err", err)
			first = err
		}
	}
	if r.Orders != nil {
		if _, err := r.Orders.List(ctx); err != nil {
			slog.Warn("services: refresh orders", "err", err)
			if first == nil {
				first = err
			}
		}
	}
	if r.Done != nil {
		r.Done(first)
	}
}
