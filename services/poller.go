package services

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"siem-console/models"
	"siem-console/system"
)

// StatusReader is the part of the session the poller depends on
type StatusReader interface {
	Status() Status
}

// PollState is what a consumer needs to render the live panel: the latest
// snapshot plus an error indicator for the most recent failed fetch.
type PollState struct {
	Snapshot      *models.Snapshot `json:"-"`
	Error         string           `json:"error,omitempty"`
	ErrorKind     ErrorKind        `json:"errorKind,omitempty"`
	LastErrorAt   *time.Time       `json:"lastErrorAt,omitempty"`
	LastSuccessAt *time.Time       `json:"lastSuccessAt,omitempty"`
	Fetching      bool             `json:"fetching"`
	Running       bool             `json:"running"`
}

// Poller keeps the latest dashboard snapshot current. At most one fetch is
// in flight at any time; a failed fetch keeps the previous snapshot.
type Poller struct {
	gw       *Gateway
	auth     StatusReader
	metrics  *PollMetrics
	interval time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger

	busy atomic.Bool

	mu          sync.RWMutex
	snapshot    *models.Snapshot
	lastErr     error
	lastErrAt   time.Time
	lastSuccess time.Time
	epoch       uint64 // bumped by Stop and Reset; in-flight results from an older epoch are dropped
	stop        chan struct{}
	subs        map[int]chan models.Snapshot
	nextSub     int
}

// NewPoller creates a poller. interval <= 0 uses the 30s default and a nil
// metrics value creates unregistered collectors.
func NewPoller(gw *Gateway, auth StatusReader, interval time.Duration, metrics *PollMetrics) *Poller {
	if interval <= 0 {
		interval = system.DefaultPollInterval
	}
	if metrics == nil {
		metrics = NewPollMetrics(nil)
	}
	return &Poller{
		gw:       gw,
		auth:     auth,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
		log:      system.Named("poller"),
		subs:     make(map[int]chan models.Snapshot),
	}
}

// FetchOnce fetches one snapshot. Requires an authenticated session.
// Returns ErrFetchInFlight without issuing a request when another fetch is
// outstanding. A failure never touches the session status; a 401 is
// handled by the gateway.
func (p *Poller) FetchOnce(ctx context.Context) error {
	p.mu.RLock()
	epoch := p.epoch
	p.mu.RUnlock()
	return p.fetch(ctx, epoch)
}

// fetch runs one fetch on behalf of epoch. The result is stored only if
// no Stop or Reset happened since epoch was read.
func (p *Poller) fetch(ctx context.Context, epoch uint64) error {
	if p.auth.Status() != StatusAuthenticated {
		return ErrNotAuthenticated
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.metrics.skipped.Inc()
		return ErrFetchInFlight
	}
	defer p.busy.Store(false)

	p.metrics.attempts.Inc()
	start := time.Now()

	var wire models.WireDashboard
	err := p.gw.Do(ctx, http.MethodGet, EndpointDashboard, nil, &wire)
	p.metrics.latency.Observe(time.Since(start).Seconds())
	at := p.now()

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		p.metrics.discarded.Inc()
		p.log.Debugw("discarding fetch result from a stopped poller")
		return err
	}

	if err != nil {
		p.lastErr = err
		p.lastErrAt = at
		p.mu.Unlock()

		kind := KindOf(err)
		if kind == "" {
			kind = KindNetwork
		}
		p.metrics.failures.WithLabelValues(string(kind)).Inc()
		p.log.Warnw("dashboard fetch failed, keeping previous snapshot", "kind", kind, "error", Display(err))
		return err
	}

	snap := wire.ToSnapshot(at)
	p.snapshot = &snap
	p.lastErr = nil
	p.lastErrAt = time.Time{}
	p.lastSuccess = at
	p.publishLocked(snap)
	p.mu.Unlock()

	p.metrics.successes.Inc()
	p.metrics.lastSuccess.Set(float64(at.Unix()))
	p.metrics.events.Set(float64(len(snap.Events)))
	p.log.Debugw("snapshot updated", "events", len(snap.Events), "captured_at", snap.CapturedAt)
	return nil
}

// RefreshNow fetches immediately, outside the schedule, still honoring
// the one-in-flight rule.
func (p *Poller) RefreshNow(ctx context.Context) error {
	return p.FetchOnce(ctx)
}

// Start begins periodic fetching. The first fetch fires immediately; a
// tick that finds a fetch still outstanding is skipped. Calling Start on
// a running poller does nothing. Cancelling ctx stops the schedule.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if p.auth.Status() != StatusAuthenticated {
		return ErrNotAuthenticated
	}
	if interval <= 0 {
		interval = p.interval
	}

	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	// Fetches outlive Stop so that they finish and get discarded rather
	// than being torn down mid-request.
	fetchCtx := context.WithoutCancel(ctx)
	go p.loop(ctx, fetchCtx, stop, interval)

	p.log.Infow("poller started", "interval", interval)
	return nil
}

func (p *Poller) loop(ctx, fetchCtx context.Context, stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	epoch, ok := p.schedule(stop)
	if !ok {
		return
	}
	p.tick(fetchCtx, stop, epoch)
	for {
		select {
		case <-ticker.C:
			epoch, ok := p.schedule(stop)
			if !ok {
				return
			}
			p.tick(fetchCtx, stop, epoch)
		case <-stop:
			return
		case <-ctx.Done():
			p.stopChan(stop)
			return
		}
	}
}

// schedule reads the epoch a tick belongs to, or reports that the
// schedule owning stop is gone.
func (p *Poller) schedule(stop chan struct{}) (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stop != stop {
		return 0, false
	}
	return p.epoch, true
}

func (p *Poller) tick(ctx context.Context, stop chan struct{}, epoch uint64) {
	go func() {
		select {
		case <-stop:
			return
		default:
		}
		err := p.fetch(ctx, epoch)
		switch {
		case errors.Is(err, ErrFetchInFlight):
			p.log.Debugw("tick skipped, fetch still in flight")
		case errors.Is(err, ErrNotAuthenticated):
			p.log.Debugw("tick skipped, session not authenticated")
		}
	}()
}

// Stop cancels the schedule. Safe to call repeatedly or before Start. A
// fetch already in flight completes but its result is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	running := p.stop != nil
	if running {
		close(p.stop)
		p.stop = nil
	}
	p.epoch++
	p.mu.Unlock()

	if running {
		p.log.Infow("poller stopped")
	}
}

func (p *Poller) stopChan(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == stop {
		close(p.stop)
		p.stop = nil
		p.epoch++
	}
}

// Reset drops the stored snapshot and error. Wired to logout so data from
// one session never shows in the next.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = nil
	p.lastErr = nil
	p.lastErrAt = time.Time{}
	p.lastSuccess = time.Time{}
	p.epoch++
}

// Running reports whether the schedule is active
func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stop != nil
}

// Fetching reports whether a fetch is outstanding
func (p *Poller) Fetching() bool {
	return p.busy.Load()
}

// Latest returns the current snapshot
func (p *Poller) Latest() (models.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil {
		return models.Snapshot{}, false
	}
	return *p.snapshot, true
}

// State returns the snapshot together with the error indicator
func (p *Poller) State() PollState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := PollState{
		Fetching: p.busy.Load(),
		Running:  p.stop != nil,
	}
	if p.snapshot != nil {
		snap := *p.snapshot
		st.Snapshot = &snap
	}
	if p.lastErr != nil {
		st.Error = Display(p.lastErr)
		st.ErrorKind = KindOf(p.lastErr)
		t := p.lastErrAt
		st.LastErrorAt = &t
	}
	if !p.lastSuccess.IsZero() {
		t := p.lastSuccess
		st.LastSuccessAt = &t
	}
	return st
}

// Subscribe returns a channel carrying each new snapshot. The channel
// holds only the latest value; a slow reader skips intermediate ones.
// The returned func unsubscribes and closes the channel.
func (p *Poller) Subscribe() (<-chan models.Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan models.Snapshot, 1)
	p.subs[id] = ch
	if p.snapshot != nil {
		ch <- *p.snapshot
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

func (p *Poller) publishLocked(snap models.Snapshot) {
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread value with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// LogQuery selects a page of the event history
type LogQuery struct {
	Page       int
	Limit      int
	Prediction string
}

// LogPage is one page of history
type LogPage struct {
	Events []models.Event `json:"events"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// FetchLogs reads a page of GET /api/dashboard/logs. It does not touch the
// stored snapshot or the busy flag.
func (p *Poller) FetchLogs(ctx context.Context, q LogQuery) (LogPage, error) {
	if p.auth.Status() != StatusAuthenticated {
		return LogPage{}, ErrNotAuthenticated
	}
	params := map[string]string{"prediction": q.Prediction}
	if q.Page > 0 {
		params["page"] = strconv.Itoa(q.Page)
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	var wire models.WireLogPage
	if err := p.gw.Do(ctx, http.MethodGet, EndpointLogs, nil, &wire, WithQuery(params)); err != nil {
		return LogPage{}, err
	}
	events := models.ConvertEvents(wire.Logs)
	if events == nil {
		events = []models.Event{}
	}
	return LogPage{Events: events, Total: wire.Total, Page: wire.Page, Limit: wire.Limit}, nil
}
