package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/tariff"
)

// TariffSource builds the price curve for one request.
type TariffSource interface {
	Series(ctx context.Context, now, deadline time.Time) (*tariff.Series, error)
}

// ManualTariff synthesises the curve from daily breakpoints.
type ManualTariff struct {
	Breakpoints []tariff.Breakpoint
	Free        *tariff.FreeWindow
}

func (m ManualTariff) Series(_ context.Context, now, deadline time.Time) (*tariff.Series, error) {
	s, err := tariff.FromBreakpoints(m.Breakpoints, now, deadline)
	if err != nil {
		return nil, err
	}
	return overlay(s, m.Free)
}

// RemoteTariff fetches the curve from a price provider.
type RemoteTariff struct {
	Provider device.PriceProvider
	Region   string
	Free     *tariff.FreeWindow
}

func (r RemoteTariff) Series(ctx context.Context, now, deadline time.Time) (*tariff.Series, error) {
	recs, err := r.Provider.Fetch(ctx, r.Region)
	if err != nil {
		return nil, &tariff.InvalidTariffError{Reason: fmt.Sprintf("fetch prices for region %s", r.Region), Err: err}
	}
	s, err := tariff.FromRecords(recs, now, deadline)
	if err != nil {
		return nil, err
	}
	return overlay(s, r.Free)
}

func overlay(s *tariff.Series, w *tariff.FreeWindow) (*tariff.Series, error) {
	if w == nil || w.Duration == 0 {
		return s, nil
	}
	return s.WithFreeWindow(*w)
}
