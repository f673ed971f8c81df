package auth

import (
	"context"
	"sync"
)

// sessionObservers はセッション失効を待つ購読者を管理する。
type sessionObservers struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func newSessionObservers() *sessionObservers {
	return &sessionObservers{watchers: make(map[string]map[chan struct{}]struct{})}
}

// watch はセッション失効時にクローズされるチャネルを返す。
// ctx終了時は購読を解除するだけでチャネルはクローズしない。
func (o *sessionObservers) watch(ctx context.Context, sessionID string) <-chan struct{} {
	ch := make(chan struct{})

	o.mu.Lock()
	if o.watchers[sessionID] == nil {
		o.watchers[sessionID] = make(map[chan struct{}]struct{})
	}
	o.watchers[sessionID][ch] = struct{}{}
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		defer o.mu.Unlock()
		if set, ok := o.watchers[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(o.watchers, sessionID)
			}
		}
	}()

	return ch
}

// revoke はセッションの全購読者に失効を通知する。
func (o *sessionObservers) revoke(sessionIDs ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range sessionIDs {
		for ch := range o.watchers[id] {
			close(ch)
		}
		delete(o.watchers, id)
	}
}

func (o *sessionObservers) count(sessionID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.watchers[sessionID])
}
