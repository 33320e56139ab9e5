package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/energysched/core/events"
	coremetrics "github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/infra/logger"
)

// RunEventCollector records metrics for each event received on sub until ctx
// is canceled or sub is closed. Subscribe before starting it so no early
// event is missed.
func RunEventCollector(ctx context.Context, sub <-chan events.Event, sink coremetrics.MetricsSink, log logger.Logger) {
	if sub == nil || sink == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := coremetrics.Observe(sink, ev, time.Now()); err != nil {
				log.Warnf("record metrics for %s: %v", ev.DeviceName(), err)
			}
		}
	}
}
