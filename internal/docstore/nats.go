package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
)

// SubjectPrefix は変更通知のNATSサブジェクト接頭辞。
// 実際のサブジェクトは SubjectPrefix + コレクション名。
const SubjectPrefix = "eliteeight.docstore."

// NATSBridge はNATS経由でインスタンス間の変更通知を中継する。
// 受信した通知はローカルのHubで再読み込みを行う。自インスタンス発の通知は無視する。
type NATSBridge struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	origin string
	hub    *Hub
	logger *slog.Logger
}

// ConnectNATS はNATSサーバーに接続し、変更通知の購読を開始する。
func ConnectNATS(url string, hub *Hub, logger *slog.Logger) (*NATSBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("eliteeight-docstore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &NATSBridge{
		conn:   conn,
		origin: nuid.Next(),
		hub:    hub,
		logger: logger,
	}
	sub, err := conn.Subscribe(SubjectPrefix+">", b.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s>: %w", SubjectPrefix, err)
	}
	b.sub = sub
	return b, nil
}

// Broadcast はコレクションの変更を他インスタンスへ通知する。
func (b *NATSBridge) Broadcast(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	return b.conn.Publish(SubjectPrefix+collection, []byte(b.origin))
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	if string(msg.Data) == b.origin {
		return
	}
	collection := strings.TrimPrefix(msg.Subject, SubjectPrefix)
	if !IsKnownCollection(collection) {
		b.logger.Debug("ignored change notice", slog.String("subject", msg.Subject))
		return
	}
	b.hub.Refresh(context.Background(), collection)
}

// Close は購読を解除して接続を閉じる。
func (b *NATSBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
}

var _ Broadcaster = (*NATSBridge)(nil)
