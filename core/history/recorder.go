package history

import (
	"context"
	"time"

	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/logger"
)

// RunRecorder appends every recordable event received on sub to store until
// ctx is canceled or sub is closed.
func RunRecorder(ctx context.Context, sub <-chan events.Event, store Store, log logger.Logger) {
	if sub == nil || store == nil {
		return
	}
	log = logger.OrNop(log)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			rec, ok := FromEvent(ev, time.Now())
			if !ok {
				continue
			}
			if err := store.Append(ctx, rec); err != nil {
				log.Warnf("history %s for %s: %v", rec.Kind, rec.Device, err)
			}
		}
	}
}
