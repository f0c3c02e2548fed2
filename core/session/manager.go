package session

import (
	"context"

	"github.com/pkg/errors"
)

var errNoNotifier = errors.New("no notifier configured")

// Manager carves per-tab Guards out of two backing stores.
// tab holds every tab's private tier, shared holds one tier per browser.
type Manager struct {
	tab    Store
	shared Store
	opts   Options
}

func NewManager(tab, shared Store, opts Options) *Manager {
	return &Manager{tab: tab, shared: shared, opts: opts}
}

// Guard returns the Guard acting for the tab identified by scope.
func (m *Manager) Guard(scope Scope) *Guard {
	opts := m.opts
	opts.Origin = scope
	return NewGuard(
		Prefixed(m.tab, "tab:"+scope.Browser+":"+scope.Tab+":"),
		Prefixed(m.shared, "browser:"+scope.Browser+":"),
		opts,
	)
}

// Subscribe listens to the Invalidations of a browser.
func (m *Manager) Subscribe(ctx context.Context, browser string) (Subscription, error) {
	if m.opts.Notifier == nil {
		return nil, errNoNotifier
	}
	return m.opts.Notifier.Subscribe(ctx, browser)
}
