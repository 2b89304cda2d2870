package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultInterval and minInterval bound the effective sync interval computed from slot configuration
// (§4.7: "default 5 minutes, bounded >= 1 minute").
const (
	defaultInterval = 5 * time.Minute
	minInterval     = 1 * time.Minute
)

// SlotConfig is one parsed mirror slot (numbered MIRROR{n}_* or a legacy comma-list entry), before
// validation (§4.7, §6).
type SlotConfig struct {
	Name     string
	URL      string
	Email    string
	Password string
	// Interval is the slot's own SYNC_INTERVAL override; zero means "use the effective interval".
	Interval time.Duration
}

// Dialer builds a SecondaryAPI client for one mirror slot. In production this is npm.NewClient; tests
// supply a fake.
type Dialer func(url, email, password string) SecondaryAPI

type mirrorTarget struct {
	name   string
	mirror *ResourceMirror
}

// Scheduler implements §4.7: periodic + on-demand sync across every configured secondary. It satisfies
// reconcile.MirrorSignal via RequestSync.
type Scheduler struct {
	active   bool
	interval time.Duration
	targets  []mirrorTarget

	runMu sync.Mutex // tryAcquire binary lock (§4.7, §5): overlapping syncs collapse to one
	wake  chan struct{}
}

// NewScheduler validates slots (dropping any missing a URL or credentials, with a warning), computes the
// effective interval, and builds one ResourceMirror per surviving slot. If no slot survives, the returned
// Scheduler is inactive: Run returns immediately and RequestSync no-ops (§4.7, §9).
func NewScheduler(primary PrimaryAPI, slots []SlotConfig, globalInterval time.Duration, dial Dialer) *Scheduler {
	s := &Scheduler{wake: make(chan struct{}, 1)}

	effective := globalInterval
	if effective <= 0 {
		effective = defaultInterval
	}

	var targets []mirrorTarget
	for _, slot := range slots {
		if slot.URL == "" || slot.Email == "" || slot.Password == "" {
			slog.Warn("Mirror slot missing URL or credentials; dropping.", "slot", slot.Name)
			continue
		}
		if slot.Interval > 0 && slot.Interval < effective {
			effective = slot.Interval
		}
		secondary := dial(slot.URL, slot.Email, slot.Password)
		targets = append(targets, mirrorTarget{name: slot.Name, mirror: NewResourceMirror(slot.Name, primary, secondary)})
	}

	if effective < minInterval {
		effective = minInterval
	}

	if len(targets) == 0 {
		return s
	}

	s.active = true
	s.interval = effective
	s.targets = targets
	return s
}

// Active reports whether any mirror target is configured.
func (s *Scheduler) Active() bool {
	return s.active
}

// RequestSync wakes the scheduler's loop early. Edge-triggered: many requests within the same interval
// collapse into a single sync (§4.7).
func (s *Scheduler) RequestSync() {
	if !s.active {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run performs an initial sync, then loops until ctx is cancelled, syncing on either the timer or an
// early wake (§4.7). If the scheduler is inactive it returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.active {
		return nil
	}

	s.syncAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.syncAll(ctx)
		case <-s.wake:
			s.syncAll(ctx)
		}
	}
}

// syncAll drives every configured secondary. A non-blocking tryLock ensures overlapping periodic/triggered
// syncs collapse to one; a concurrent caller simply no-ops with a debug log (§4.7, §5).
func (s *Scheduler) syncAll(ctx context.Context) {
	if !s.runMu.TryLock() {
		slog.Debug("Mirror sync already running; skipping overlapping request.")
		return
	}
	defer s.runMu.Unlock()

	for _, t := range s.targets {
		if ctx.Err() != nil {
			return
		}
		res := t.mirror.Sync(ctx)
		slog.Info("Mirror sync completed.",
			"secondary", t.name,
			"certificates_synced", res.Certificates.Synced, "certificates_skipped", res.Certificates.Skipped,
			"access_lists_synced", res.AccessLists.Synced, "access_lists_skipped", res.AccessLists.Skipped,
			"proxy_hosts_synced", res.ProxyHosts.Synced, "proxy_hosts_skipped", res.ProxyHosts.Skipped,
			"redirection_hosts_synced", res.RedirectionHosts.Synced,
			"streams_synced", res.Streams.Synced, "streams_skipped", res.Streams.Skipped,
			"dead_hosts_synced", res.DeadHosts.Synced,
		)
	}
}
