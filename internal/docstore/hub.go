package docstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eliteeight/site/internal/model"
)

// ChangeType はスナップショット間の差分種別。
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change はID単位の差分。
type Change struct {
	Type ChangeType `json:"type"`
	ID   string     `json:"id"`
}

// Snapshot はコレクション全体のその時点の状態。
// Changesは同じ購読者に前回届けたスナップショットからの差分。
type Snapshot struct {
	Collection string           `json:"collection"`
	Documents  []model.Document `json:"documents"`
	Changes    []Change         `json:"changes"`
	At         time.Time        `json:"at"`
}

// Loader はコレクションの全ドキュメントを読み込む関数。
type Loader func(ctx context.Context, collection string) ([]model.Document, error)

// Hub はコレクションごとの購読者にスナップショットを配信する。
// 変更通知ごとにコレクションを読み直し、全購読者へファンアウトする。
type Hub struct {
	load   Loader
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	subs  map[string]map[*subscriber]struct{}
	locks map[string]*sync.Mutex
}

// NewHub はHubを生成する。
func NewHub(load Loader, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		load:   load,
		logger: logger,
		now:    time.Now,
		subs:   make(map[string]map[*subscriber]struct{}),
		locks:  make(map[string]*sync.Mutex),
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	// seen は最後に送信したスナップショットのID->更新日時。
	seen map[string]time.Time
	// pendingBase は未受信のスナップショットを送る直前のseen。
	pendingBase map[string]time.Time
}

// Subscribe はコレクションの購読を開始する。
// 現在のスナップショットを即座に1件送信し、以降は変更のたびに送信する。
// チャネルはctx終了時にクローズされる。
func (h *Hub) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error) {
	lock := h.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	docs, err := h.load(ctx, collection)
	if err != nil {
		return nil, err
	}

	sub := &subscriber{ch: make(chan Snapshot, 1)}
	sub.deliver(collection, docs, h.now())

	h.mu.Lock()
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*subscriber]struct{})
	}
	h.subs[collection][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[collection], sub)
		if len(h.subs[collection]) == 0 {
			delete(h.subs, collection)
		}
		h.mu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

// Refresh はコレクションを読み直して全購読者に新しいスナップショットを送る。
// 購読者がいない場合は何もしない。
// 購読者の確認はコレクションロックの内側で行う。Subscribeの初回読み込み中に
// 届いた変更は、登録完了後にここで必ず配信される。
func (h *Hub) Refresh(ctx context.Context, collection string) {
	lock := h.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	subs := h.subscribers(collection)
	if len(subs) == 0 {
		return
	}

	docs, err := h.load(ctx, collection)
	if err != nil {
		h.logger.Warn("snapshot reload failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return
	}

	at := h.now()
	for _, sub := range subs {
		sub.deliver(collection, docs, at)
	}
}

// SubscriberCount はコレクションの現在の購読者数を返す。
func (h *Hub) SubscriberCount(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

func (h *Hub) subscribers(collection string) []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*subscriber, 0, len(h.subs[collection]))
	for sub := range h.subs[collection] {
		subs = append(subs, sub)
	}
	return subs
}

func (h *Hub) collectionLock(collection string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[collection]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[collection] = lock
	}
	return lock
}

// deliver はスナップショットをノンブロッキングで送信する。
// 未受信のスナップショットが残っている場合は新しいもので置き換え、
// 差分は置き換えられたスナップショットの送信前の状態から計算する。
func (s *subscriber) deliver(collection string, docs []model.Document, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	base := s.seen
	select {
	case <-s.ch:
		base = s.pendingBase
	default:
	}

	next := make(map[string]time.Time, len(docs))
	for _, d := range docs {
		next[d.ID] = d.UpdatedAt
	}

	s.pendingBase = base
	s.seen = next
	s.ch <- Snapshot{
		Collection: collection,
		Documents:  docs,
		Changes:    diff(base, next, docs),
		At:         at,
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// diff は前回の状態から今回のドキュメント一覧への差分を返す。
// 追加と更新はドキュメントの並び順、削除はその後に続く。
func diff(prev, next map[string]time.Time, docs []model.Document) []Change {
	changes := []Change{}
	for _, d := range docs {
		old, ok := prev[d.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Type: ChangeAdded, ID: d.ID})
		case !old.Equal(d.UpdatedAt):
			changes = append(changes, Change{Type: ChangeModified, ID: d.ID})
		}
	}
	var removed []string
	for id := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		changes = append(changes, Change{Type: ChangeRemoved, ID: id})
	}
	return changes
}
