package distributor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Logger       *slog.Logger
	Clock        clockwork.Clock
	Distributor  *Distributor
	PollInterval time.Duration

	// OnChange is invoked with the new snapshot whenever the observed status
	// differs from the previous poll, including the first poll.
	OnChange func(Status)
}

func (cfg *WatcherConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Distributor == nil {
		return errors.New("distributor is required")
	}
	if cfg.OnChange == nil {
		return errors.New("change callback is required")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Watcher polls the sale status and surfaces transitions (phase changes,
// pause flips, counter movement) to a callback. Phase is derived from the
// clock on every poll, so phase boundary crossings are observed even when no
// state write happens.
type Watcher struct {
	log       *slog.Logger
	cfg       WatcherConfig
	refreshMu sync.Mutex

	last    Status
	hasLast bool
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Watcher{log: cfg.Logger, cfg: cfg}, nil
}

func (w *Watcher) Start(ctx context.Context) {
	go func() {
		w.log.Info("watcher: starting poll loop", "interval", w.cfg.PollInterval)

		w.safePoll(ctx)

		ticker := w.cfg.Clock.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.safePoll(ctx)
			}
		}
	}()
}

func (w *Watcher) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watcher: poll panicked", "panic", r)
		}
	}()

	if err := w.Poll(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.log.Error("watcher: poll failed", "error", err)
	}
}

// Poll fetches the current status and fires the callback if it changed.
func (w *Watcher) Poll(ctx context.Context) error {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	status, err := w.cfg.Distributor.Status(ctx)
	if err != nil {
		return err
	}

	if w.hasLast && statusEqual(w.last, status) {
		return nil
	}
	if w.hasLast && w.last.Phase != status.Phase {
		w.log.Info("watcher: phase transition", "from", w.last.Phase.String(), "to", status.Phase.String())
	}
	w.last = status
	w.hasLast = true
	w.cfg.OnChange(status)
	return nil
}

func statusEqual(a, b Status) bool {
	if a.Phase != b.Phase || a.Paused != b.Paused ||
		a.TotalMinted != b.TotalMinted || a.FreeMintContingent != b.FreeMintContingent ||
		a.RootHash != b.RootHash || a.Collector != b.Collector {
		return false
	}
	if !a.ReleaseDate.Equal(b.ReleaseDate) || !a.WLReleaseDate.Equal(b.WLReleaseDate) {
		return false
	}
	switch {
	case a.ItemPrice == nil && b.ItemPrice == nil:
	case a.ItemPrice == nil || b.ItemPrice == nil:
		return false
	default:
		if !a.ItemPrice.Eq(b.ItemPrice) {
			return false
		}
	}
	return true
}
