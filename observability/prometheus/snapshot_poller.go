package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/hetsched/hetsched/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into
// Prometheus gauges: one set of scheduler-wide series per registered
// scheduler, plus per-domain pool series.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	schedulerPending   *prom.GaugeVec
	schedulerSubmitted *prom.GaugeVec
	schedulerFinished  *prom.GaugeVec
	schedulerCancelled *prom.GaugeVec
	schedulerStolen    *prom.GaugeVec
	schedulerRejected  *prom.GaugeVec
	schedulerRunning   *prom.GaugeVec

	domainQueued  *prom.GaugeVec
	domainActive  *prom.GaugeVec
	domainWorkers *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedulerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_pending",
		Help:      "Launched tasks that have not yet terminated.",
	}, []string{"scheduler"})
	schedulerSubmitted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_submitted_total",
		Help:      "Scheduler submitted task count snapshot.",
	}, []string{"scheduler"})
	schedulerFinished := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_finished_total",
		Help:      "Scheduler finished task count snapshot.",
	}, []string{"scheduler"})
	schedulerCancelled := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_cancelled_total",
		Help:      "Scheduler cancelled task count snapshot.",
	}, []string{"scheduler"})
	schedulerStolen := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_stolen_total",
		Help:      "Scheduler stolen task count snapshot.",
	}, []string{"scheduler"})
	schedulerRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_rejected_total",
		Help:      "Scheduler rejected launch count snapshot.",
	}, []string{"scheduler"})
	schedulerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "scheduler_running",
		Help:      "Scheduler running state (1=running, 0=stopped).",
	}, []string{"scheduler"})

	domainQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "domain_queued",
		Help:      "Queued tasks per device domain pool.",
	}, []string{"scheduler", "domain"})
	domainActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "domain_active",
		Help:      "Executing tasks per device domain pool.",
	}, []string{"scheduler", "domain"})
	domainWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hetsched",
		Name:      "domain_workers",
		Help:      "Worker count per device domain pool.",
	}, []string{"scheduler", "domain"})

	var err error
	if schedulerPending, err = registerCollector(reg, schedulerPending); err != nil {
		return nil, err
	}
	if schedulerSubmitted, err = registerCollector(reg, schedulerSubmitted); err != nil {
		return nil, err
	}
	if schedulerFinished, err = registerCollector(reg, schedulerFinished); err != nil {
		return nil, err
	}
	if schedulerCancelled, err = registerCollector(reg, schedulerCancelled); err != nil {
		return nil, err
	}
	if schedulerStolen, err = registerCollector(reg, schedulerStolen); err != nil {
		return nil, err
	}
	if schedulerRejected, err = registerCollector(reg, schedulerRejected); err != nil {
		return nil, err
	}
	if schedulerRunning, err = registerCollector(reg, schedulerRunning); err != nil {
		return nil, err
	}
	if domainQueued, err = registerCollector(reg, domainQueued); err != nil {
		return nil, err
	}
	if domainActive, err = registerCollector(reg, domainActive); err != nil {
		return nil, err
	}
	if domainWorkers, err = registerCollector(reg, domainWorkers); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:           interval,
		schedulers:         make(map[string]SchedulerSnapshotProvider),
		schedulerPending:   schedulerPending,
		schedulerSubmitted: schedulerSubmitted,
		schedulerFinished:  schedulerFinished,
		schedulerCancelled: schedulerCancelled,
		schedulerStolen:    schedulerStolen,
		schedulerRejected:  schedulerRejected,
		schedulerRunning:   schedulerRunning,
		domainQueued:       domainQueued,
		domainActive:       domainActive,
		domainWorkers:      domainWorkers,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedulerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.schedulerSubmitted.WithLabelValues(name).Set(float64(stats.Submitted))
		p.schedulerFinished.WithLabelValues(name).Set(float64(stats.Finished))
		p.schedulerCancelled.WithLabelValues(name).Set(float64(stats.Cancelled))
		p.schedulerStolen.WithLabelValues(name).Set(float64(stats.Stolen))
		p.schedulerRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		if stats.Running {
			p.schedulerRunning.WithLabelValues(name).Set(1)
		} else {
			p.schedulerRunning.WithLabelValues(name).Set(0)
		}

		for _, d := range stats.Domains {
			p.domainQueued.WithLabelValues(name, d.Domain.String()).Set(float64(d.Queued))
			p.domainActive.WithLabelValues(name, d.Domain.String()).Set(float64(d.Active))
			p.domainWorkers.WithLabelValues(name, d.Domain.String()).Set(float64(d.Workers))
		}
	}
}
