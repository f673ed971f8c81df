package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
)

// DefaultStreamRecheck はストリーム中にセッションとロールを再確認する間隔。
const DefaultStreamRecheck = 30 * time.Second

// SnapshotSubscriber はコレクションのスナップショット購読を提供する。
type SnapshotSubscriber interface {
	Subscribe(ctx context.Context, collection string) (<-chan docstore.Snapshot, error)
}

// SessionWatcher はストリームをセッションの状態に結び付ける。
type SessionWatcher interface {
	// Watch はセッションが失効したときにクローズされるチャネルを返す。
	Watch(ctx context.Context, sessionID string) <-chan struct{}
	// Resolve はセッショントークンから現在の主体を解決する。
	Resolve(ctx context.Context, token string) (*model.Principal, error)
}

// SubscriberRecorder はライブ購読数のメトリクスを記録する。
type SubscriberRecorder interface {
	SubscriberOpened(collection string)
	SubscriberClosed(collection string)
}

// StreamHandler はコレクションのスナップショットをServer-Sent Eventsで配信する。
// 接続が閉じられると購読を解除する。
// セッションが失効した場合、または管理者でなくなった場合は revoked イベントを送って終了する。
type StreamHandler struct {
	snapshots SnapshotSubscriber
	sessions  SessionWatcher
	recorder  SubscriberRecorder
	recheck   time.Duration
}

// NewStreamHandler はStreamHandlerを生成する。recheckが0以下の場合はDefaultStreamRecheckを使う。
func NewStreamHandler(snapshots SnapshotSubscriber, sessions SessionWatcher, recorder SubscriberRecorder, recheck time.Duration) *StreamHandler {
	if recheck <= 0 {
		recheck = DefaultStreamRecheck
	}
	return &StreamHandler{
		snapshots: snapshots,
		sessions:  sessions,
		recorder:  recorder,
		recheck:   recheck,
	}
}

// Stream は指定コレクションのストリームハンドラーを返す。
// GET /api/admin/{collection}/stream
func (h *StreamHandler) Stream(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		snapshots, err := h.snapshots.Subscribe(ctx, collection)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		revoked := h.sessions.Watch(ctx, principal.SessionID)
		token := middleware.SessionToken(r)

		if h.recorder != nil {
			h.recorder.SubscriberOpened(collection)
			defer h.recorder.SubscriberClosed(collection)
		}

		rc := http.NewResponseController(w)
		// ストリームはサーバーのWriteTimeoutを超えて継続する
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()

		ticker := time.NewTicker(h.recheck)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-revoked:
				writeEvent(w, rc, "revoked", struct{}{})
				return
			case <-ticker.C:
				if !h.stillAdmin(ctx, token) {
					writeEvent(w, rc, "revoked", struct{}{})
					return
				}
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				_ = rc.Flush()
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				if !writeEvent(w, rc, "snapshot", snap) {
					return
				}
			}
		}
	}
}

// stillAdmin はセッションが有効で、現在のロールが管理者かどうかを再確認する。
func (h *StreamHandler) stillAdmin(ctx context.Context, token string) bool {
	p, err := h.sessions.Resolve(ctx, token)
	if err != nil {
		slog.Info("stream closed on session recheck", slog.String("error", err.Error()))
		return false
	}
	return p.IsAdmin()
}

// writeEvent はSSEイベントを1件書き込む。書き込みに失敗した場合はfalseを返す。
func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode stream event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	return rc.Flush() == nil
}
