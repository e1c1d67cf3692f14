// Package monitor runs the periodic cost polling loop: fetch cost updates,
// record them in the ledger, feed resulting alerts to the adjustment
// engine, and sweep expired adjustments.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pod-pricing/engine/adjust"
	"pod-pricing/engine/ledger"
	"pod-pricing/pkg/clock"
)

// CostUpdate is one fetched cost observation.
type CostUpdate struct {
	ProductID     string          `json:"product_id"`
	VariantID     int             `json:"variant_id"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	Currency      string          `json:"currency"`
}

// Source supplies cost updates each poll cycle.
type Source interface {
	FetchCosts(ctx context.Context) ([]CostUpdate, error)
}

// FileSource reads cost updates from a JSON drop file and consumes it, so
// each file is ingested once. A missing file yields no updates.
type FileSource struct {
	Path string
}

// FetchCosts reads and removes the drop file.
func (f *FileSource) FetchCosts(ctx context.Context) ([]CostUpdate, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var updates []CostUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, err
	}
	if err := os.Remove(f.Path); err != nil {
		return nil, err
	}
	return updates, nil
}

// Monitor drives the poll loop on its own goroutine.
type Monitor struct {
	interval time.Duration
	source   Source
	ledger   *ledger.Ledger
	adjuster *adjust.Engine
	clk      clock.Clock
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a monitor. Interval defaults to one hour.
func New(interval time.Duration, source Source, l *ledger.Ledger, a *adjust.Engine, clk clock.Clock, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Monitor{
		interval: interval,
		source:   source,
		ledger:   l,
		adjuster: a,
		clk:      clk,
		log:      log,
	}
}

// Start launches the poll loop. It returns immediately; the loop stops
// when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.log.Info().Dur("interval", m.interval).Msg("cost monitor started")
		for {
			select {
			case <-ctx.Done():
				m.log.Info().Msg("cost monitor stopped")
				return
			case <-ticker.C:
				m.Poll(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.done != nil {
			<-m.done
		}
	})
}

// Poll runs one monitoring cycle and returns how many cost updates were
// ingested.
func (m *Monitor) Poll(ctx context.Context) int {
	updates, err := m.source.FetchCosts(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("cost fetch failed")
		return 0
	}

	ingested := 0
	for _, u := range updates {
		snap := ledger.CostSnapshot{
			BaseCost:      u.BaseCost,
			ShippingCost:  u.ShippingCost,
			ProcessingFee: u.ProcessingFee,
			Currency:      u.Currency,
		}
		alert, err := m.ledger.RecordCost(u.ProductID, u.VariantID, snap)
		if err != nil {
			m.log.Warn().Err(err).Str("product", u.ProductID).Msg("cost update rejected")
			continue
		}
		ingested++
		if alert == nil {
			continue
		}
		if _, err := m.adjuster.OnAlert(*alert); err != nil {
			m.log.Warn().Err(err).Str("product", u.ProductID).Msg("alert produced no adjustment")
		}
	}

	m.adjuster.CleanupExpired()
	if ingested > 0 {
		m.log.Info().Int("updates", ingested).Msg("monitor cycle complete")
	}
	return ingested
}
