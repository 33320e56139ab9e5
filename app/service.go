package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/energysched/config"
	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/history"
	coremetrics "github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/core/model"
	coremon "github.com/kilianp07/energysched/core/monitoring"
	"github.com/kilianp07/energysched/core/scheduler"
	"github.com/kilianp07/energysched/core/store"
	"github.com/kilianp07/energysched/core/telemetry"
	"github.com/kilianp07/energysched/infra/httpapi"
	"github.com/kilianp07/energysched/infra/kvstore"
	"github.com/kilianp07/energysched/infra/logger"
	"github.com/kilianp07/energysched/infra/metrics"
	"github.com/kilianp07/energysched/infra/monitoring"
	"github.com/kilianp07/energysched/infra/mqtt"
	"github.com/kilianp07/energysched/infra/octopus"
	"github.com/kilianp07/energysched/internal/eventbus"
)

// unit is everything the service runs for one configured device.
type unit struct {
	cfg    config.DeviceConfig
	bridge *mqtt.DeviceBridge
	sched  *scheduler.Scheduler
	charge *scheduler.Worker
	boost  *scheduler.Worker
	poller *telemetry.Poller
}

// Service wires schedulers, workers, pollers and the control API together.
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	exec    mqtt.Executor
	mqtt    *mqtt.PahoClient
	kv      store.KV
	history history.Store
	units   map[string]*unit
	order   []string
	inbox   chan events.Event
	done    chan struct{}
	tracker *scheduler.Tracker
	bus     *eventbus.TypedBus[events.Event]
	sink    coremetrics.MetricsSink
	api     *httpapi.Server
	now     func() time.Time

	historySet bool
	dropped    map[string]uint64
}

// Option customises New.
type Option func(*Service)

// WithExecutor sends device commands through exec instead of connecting to
// the configured MQTT broker.
func WithExecutor(exec mqtt.Executor) Option { return func(s *Service) { s.exec = exec } }

// WithStore replaces the configured lifecycle store.
func WithStore(kv store.KV) Option { return func(s *Service) { s.kv = kv } }

// WithHistory replaces the configured history store. A nil store disables
// history.
func WithHistory(h history.Store) Option {
	return func(s *Service) { s.history, s.historySet = h, true }
}

// WithSink replaces the configured metrics sinks.
func WithSink(sink coremetrics.MetricsSink) Option { return func(s *Service) { s.sink = sink } }

// New creates a Service from the configuration. Lifecycles are restored from
// the store before it returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		log:     logger.New("service"),
		units:   map[string]*unit{},
		inbox:   make(chan events.Event, cfg.Scheduler.EventBuffer),
		done:    make(chan struct{}),
		tracker: scheduler.NewTracker(),
		bus:     eventbus.NewTyped[events.Event](eventbus.WithBuffer(cfg.Scheduler.EventBuffer)),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.sink == nil {
		if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
	}
	if s.kv == nil {
		if s.kv, err = newStore(ctx, cfg.Store); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	if !s.historySet {
		if s.history, err = history.Open(cfg.History); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	if s.exec == nil {
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.exec = s.mqtt
	}

	src, err := tariffSource(cfg.Tariff)
	if err != nil {
		return nil, err
	}
	for _, dc := range cfg.Devices {
		u, err := s.newUnit(ctx, dc, src)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		s.units[dc.Name] = u
		s.order = append(s.order, dc.Name)
	}

	if cfg.HTTP.IsEnabled() {
		s.api = httpapi.NewServer(s, httpapi.WithToken(cfg.HTTP.Token), httpapi.WithLogger(logger.New("http")))
	}
	return s, nil
}

func (s *Service) newUnit(ctx context.Context, dc config.DeviceConfig, src scheduler.TariffSource) (*unit, error) {
	log := logger.ForDevice("scheduler", dc.Name)
	bridge := mqtt.NewDeviceBridge(s.exec, dc.DeviceKind(), dc.Serial,
		mqtt.WithClearDelay(s.cfg.Scheduler.ClearDelay),
		mqtt.WithBridgeLogger(log))
	client := device.NewRetryClient(bridge, s.cfg.Retry.Policy(), log)
	tol := dc.MergeTolerance
	if tol == 0 {
		tol = s.cfg.Scheduler.MergeTolerance
	}
	sched, err := scheduler.New(ctx, scheduler.Config{
		Name:           dc.Name,
		Kind:           dc.DeviceKind(),
		Relay:          dc.Relay,
		RateKW:         dc.RateKW,
		Grace:          s.cfg.Scheduler.Grace,
		MergeTolerance: tol,
		EcoPlus:        dc.EcoPlus,
	}, client, src, s.kv, log)
	if err != nil {
		return nil, err
	}
	u := &unit{
		cfg:    dc,
		bridge: bridge,
		sched:  sched,
		charge: scheduler.NewWorker(s.publish, log),
		poller: telemetry.NewPoller(dc.Name, client, s.cfg.Poll.Telemetry(), s.publish, log),
	}
	if dc.DeviceKind() == model.KindEddi {
		u.boost = scheduler.NewWorker(s.publish, log)
	}
	return u, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.KV, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return kvstore.NewRedisStore(ctx, cfg.Redis)
	}
	return kvstore.NewFileStore(cfg.Path)
}

func tariffSource(cfg config.TariffConfig) (scheduler.TariffSource, error) {
	free, err := cfg.ParsedFreeWindow()
	if err != nil {
		return nil, err
	}
	if cfg.Source == "agile" {
		return scheduler.RemoteTariff{Provider: octopus.NewClient(cfg.Octopus), Region: cfg.Region, Free: free}, nil
	}
	bps, err := cfg.ParsedBreakpoints()
	if err != nil {
		return nil, err
	}
	return scheduler.ManualTariff{Breakpoints: bps, Free: free}, nil
}

// publish hands an event to the consumer. It gives up once Run is stopping.
func (s *Service) publish(ev events.Event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// stopOn closes done as soon as ctx is cancelled, so producers blocked on a
// full inbox return after the consumer has exited. The returned func closes
// done immediately.
func (s *Service) stopOn(ctx context.Context) func() {
	closeDone := sync.OnceFunc(func() { close(s.done) })
	context.AfterFunc(ctx, closeDone)
	return closeDone
}

// Run starts every worker and blocks until ctx is cancelled or one of them
// fails.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	defer s.stopOn(gctx)()
	for _, name := range s.order {
		u := s.units[name]
		g.Go(func() error { return u.charge.Run(gctx) })
		if u.boost != nil {
			g.Go(func() error { return u.boost.Run(gctx) })
		}
		if s.cfg.Poll.IsEnabled() {
			g.Go(func() error {
				defer func() { coremon.CapturePanic(recover(), "poller") }()
				return u.poller.Run(gctx)
			})
		}
	}
	metricsSub, historySub := s.bus.Subscribe("metrics"), s.bus.Subscribe("history")
	defer s.bus.Unsubscribe(metricsSub)
	defer s.bus.Unsubscribe(historySub)
	g.Go(func() error {
		metrics.RunEventCollector(gctx, metricsSub, s.sink, logger.New("metrics"))
		return nil
	})
	g.Go(func() error {
		history.RunRecorder(gctx, historySub, s.history, logger.New("history"))
		return nil
	})
	g.Go(func() error { return s.consume(gctx) })
	g.Go(func() error { return s.tickLoop(gctx) })
	if s.api != nil {
		g.Go(func() error { return s.api.ListenAndServe(gctx, s.cfg.HTTP.Address) })
	}
	s.log.Infof("running %d device(s)", len(s.order))
	return g.Wait()
}

// consume is the single reader of the inbox.
func (s *Service) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

func (s *Service) handle(ev events.Event) {
	s.tracker.Observe(ev)
	s.bus.Publish(ev)
	u := s.units[ev.DeviceName()]
	switch e := ev.(type) {
	case events.RequestFailed:
		if e.Op != events.OpTelemetry {
			s.log.Errorf("%s: %s failed: %v", e.Device, e.Op, e.Err)
		}
		coremon.ReportFailure(e)
	case events.PlanComputed:
		s.log.Infof("%s: plan %d allocates %d of %d minutes", e.Device, e.Seq, e.Plan.TotalMinutes, e.Plan.RequiredMinutes)
	case events.ScheduleApplied, events.BoostApplied, events.BoostCancelled:
		if u != nil {
			u.poller.Reset()
		}
	}
}

func (s *Service) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Scheduler.TickInterval)
	defer ticker.Stop()
	// lifecycles restored from the store may already be due
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
			s.checkBus()
		}
	}
}

// checkBus warns when a bus subscriber lost events since the last check.
func (s *Service) checkBus() {
	if s.dropped == nil {
		s.dropped = map[string]uint64{}
	}
	for _, st := range s.bus.Stats() {
		if st.Dropped > s.dropped[st.Name] {
			s.log.Warnf("%s consumer dropped %d event(s), %d pending", st.Name, st.Dropped-s.dropped[st.Name], st.Pending)
			s.dropped[st.Name] = st.Dropped
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := s.now()
	for _, name := range s.order {
		for _, ev := range s.units[name].sched.TickEvents(ctx, now) {
			s.publish(ev)
		}
	}
}

// Scheduler returns the scheduler of a configured device.
func (s *Service) Scheduler(name string) (*scheduler.Scheduler, error) {
	u, err := s.unit(name)
	if err != nil {
		return nil, err
	}
	return u.sched, nil
}

// Close releases the broker connection, the store and the metrics sinks.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.bus.Close()
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.log.Warnf("close history: %v", err)
		}
	}
	coremon.Flush(2 * time.Second)
	if c, ok := s.kv.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
