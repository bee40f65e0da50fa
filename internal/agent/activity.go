package agent

import (
	"context"

	"github.com/wonny/tradeloop/internal/contracts"
)

// OnActivity registers fn to receive every activity entry after it is
// persisted. fn runs on the appending goroutine and must not block.
func (a *Agent) OnActivity(fn func(contracts.ActivityLogEntry)) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Activity returns the newest limit entries, oldest first
func (a *Agent) Activity(ctx context.Context, limit int) ([]contracts.ActivityLogEntry, error) {
	return a.store.RecentActivity(ctx, limit)
}

// logActivity appends one domain activity record. A failed append is logged
// and swallowed.
func (a *Agent) logActivity(ctx context.Context, action, detail string, category contracts.ActivityCategory) {
	entry := contracts.ActivityLogEntry{
		Timestamp: a.now().UTC(),
		Action:    action,
		Detail:    detail,
		Category:  category,
	}

	a.logger.WithFields(map[string]interface{}{
		"action":   action,
		"category": category,
	}).Debug(detail)

	// 종료 중에도 기록은 남긴다
	if err := a.store.AppendActivity(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("Failed to append activity")
		return
	}

	a.listenersMu.RLock()
	listeners := a.listeners
	a.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(entry)
	}
}
