// Package ids はドキュメントストアが払い出すドキュメントIDを生成する。
package ids

import (
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator は単調増加するULIDを生成する。
// 同一ミリ秒内でも生成順に辞書順で並ぶ。
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator はGeneratorを生成する。
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}
}

// New は新しいIDを返す。
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var defaultGenerator = NewGenerator()

// New はパッケージ共通のGeneratorで新しいIDを返す。
func New() string {
	return defaultGenerator.New()
}
