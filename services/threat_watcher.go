package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"siem-console/models"
	"siem-console/system"
	"siem-console/views"
)

var threatRank = map[string]int{views.ThreatLow: 1, views.ThreatMedium: 2, views.ThreatHigh: 3}

// ThreatWatcher follows the poller's snapshots and raises webhook alerts
// when the threat level escalates or malicious events appear that were not
// in any earlier snapshot.
type ThreatWatcher struct {
	poller   *Poller
	webhook  *WebhookService
	geo      GeoLocator
	cooldown time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger

	mu          sync.Mutex
	primed      bool
	seen        map[int64]struct{}
	lastLevel   string
	lastAttack  time.Time
	unsubscribe func()
	done        chan struct{}
}

// NewThreatWatcher creates a watcher. cooldown bounds how often attack
// alerts are sent; level escalations are always sent.
func NewThreatWatcher(p *Poller, webhook *WebhookService, geo GeoLocator, cooldown time.Duration) *ThreatWatcher {
	return &ThreatWatcher{
		poller:   p,
		webhook:  webhook,
		geo:      geo,
		cooldown: cooldown,
		now:      time.Now,
		log:      system.Named("threat-watcher"),
		seen:     make(map[int64]struct{}),
	}
}

// Start subscribes to the poller. Calling it twice does nothing.
func (w *ThreatWatcher) Start() {
	w.mu.Lock()
	if w.unsubscribe != nil {
		w.mu.Unlock()
		return
	}
	ch, unsubscribe := w.poller.Subscribe()
	w.unsubscribe = unsubscribe
	done := make(chan struct{})
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		for snap := range ch {
			w.Observe(snap)
		}
	}()
	w.log.Infow("threat watcher started", "webhook", w.webhook.IsEnabled(), "cooldown", w.cooldown)
}

// Stop unsubscribes and waits for the loop to exit
func (w *ThreatWatcher) Stop() {
	w.mu.Lock()
	unsubscribe, done := w.unsubscribe, w.done
	w.unsubscribe, w.done = nil, nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		<-done
	}
}

// Reset forgets the baseline so the next snapshot primes it again
func (w *ThreatWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.primed = false
	w.seen = make(map[int64]struct{})
	w.lastLevel = ""
}

// Observe processes one snapshot. The first one after a reset only sets
// the baseline. Returns the number of alerts sent.
func (w *ThreatWatcher) Observe(snap models.Snapshot) int {
	level := views.ThreatLevel(snap)
	counts := views.Counts(snap)

	w.mu.Lock()
	var fresh []models.Event
	for _, e := range views.Alerts(snap) {
		if _, ok := w.seen[e.ID]; !ok {
			w.seen[e.ID] = struct{}{}
			fresh = append(fresh, e)
		}
	}
	primed := w.primed
	w.primed = true
	prevLevel := w.lastLevel
	w.lastLevel = level

	escalated := primed && threatRank[level] > threatRank[prevLevel]
	attack := primed && len(fresh) > 0 && w.now().Sub(w.lastAttack) >= w.cooldown
	if attack {
		w.lastAttack = w.now()
	}
	w.mu.Unlock()

	sent := 0
	if !w.webhook.IsEnabled() {
		return sent
	}
	if escalated {
		if err := w.webhook.SendThreatLevelAlert(prevLevel, level, counts.Malicious, counts.Benign); err != nil {
			w.log.Warnw("threat level alert failed", "error", err)
		} else {
			sent++
		}
	}
	if attack {
		if err := w.webhook.SendAttackAlert(fresh, w.geo); err != nil {
			w.log.Warnw("attack alert failed", "error", err)
		} else {
			sent++
		}
	}
	return sent
}
