package telegram

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Router gates inbound events by the user allow-list and serializes
// handling per user: one event runs to completion before the next event of
// the same user is dispatched. Unlisted users get no response at all.
type Router struct {
	handler Handler
	allowed map[int64]struct{}
	lg      *zap.Logger

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

// NewRouter builds a router. An empty allow-list disables gating.
func NewRouter(handler Handler, allowedIDs []int64, lg *zap.Logger) *Router {
	allowed := make(map[int64]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	return &Router{
		handler: handler,
		allowed: allowed,
		lg:      lg,
		users:   make(map[int64]*sync.Mutex),
	}
}

// Dispatch routes one event to the handler.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	if len(r.allowed) > 0 {
		if _, ok := r.allowed[ev.UserID]; !ok {
			r.lg.Debug("event from unlisted user dropped", zap.Int64("user", ev.UserID))
			return
		}
	}

	lock := r.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	switch ev.Kind {
	case EventCommand:
		r.handler.OnCommand(ctx, ev)
	case EventCallback:
		r.handler.OnAction(ctx, ev)
	case EventText:
		r.handler.OnText(ctx, ev)
	default:
		r.lg.Warn("event of unknown kind dropped", zap.Int("kind", int(ev.Kind)))
	}
}

func (r *Router) userLock(userID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.users[userID] = lock
	}
	return lock
}
