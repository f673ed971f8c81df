// Package docstore はコレクション単位のドキュメントストアを提供する。
// 書き込みはPostgreSQLに永続化され、変更はHub経由で購読者へスナップショットとして配信される。
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eliteeight/site/internal/ids"
	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
)

var (
	// ErrNotFound は更新対象のドキュメントが存在しない場合に返される。
	ErrNotFound = errors.New("docstore: document not found")
	// ErrUnknownCollection は未定義のコレクションを指定した場合に返される。
	ErrUnknownCollection = errors.New("docstore: unknown collection")
	// ErrReadOnly は読み取り専用コレクションへの書き込みで返される。
	ErrReadOnly = errors.New("docstore: collection is read-only")
	// ErrInvalidData はドキュメントデータがJSONオブジェクトでない場合に返される。
	ErrInvalidData = errors.New("docstore: data must be a JSON object")
)

var knownCollections = map[string]bool{
	model.CollectionLeads:        true,
	model.CollectionTestimonials: true,
	model.CollectionTeam:         true,
	model.CollectionServices:     true,
	model.CollectionUsers:        true,
	model.CollectionSettings:     true,
	model.CollectionContent:      true,
}

// VirtualCollection はドキュメントテーブル以外から読み出される読み取り専用コレクション。
type VirtualCollection interface {
	Documents(ctx context.Context) ([]model.Document, error)
}

// Broadcaster は他インスタンスへ変更通知を送る。
type Broadcaster interface {
	Broadcast(ctx context.Context, collection string) error
}

// Store はドキュメントストアの境界。
type Store struct {
	repo   repository.DocumentRepository
	hub    *Hub
	ids    *ids.Generator
	now    func() time.Time
	logger *slog.Logger

	mu          sync.RWMutex
	virtual     map[string]VirtualCollection
	broadcaster Broadcaster
}

// NewStore はStoreを生成する。
func NewStore(repo repository.DocumentRepository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo:    repo,
		ids:     ids.NewGenerator(),
		now:     time.Now,
		logger:  logger,
		virtual: make(map[string]VirtualCollection),
	}
	s.hub = NewHub(s.List, logger)
	return s
}

// Hub はスナップショット配信用のHubを返す。
func (s *Store) Hub() *Hub {
	return s.hub
}

// RegisterVirtual はコレクションを読み取り専用の仮想コレクションとして登録する。
func (s *Store) RegisterVirtual(collection string, src VirtualCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.virtual[collection] = src
}

// SetBroadcaster は他インスタンスへの変更通知先を設定する。
func (s *Store) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// Add はストアが採番したIDで新しいドキュメントを作成し、そのIDを返す。
func (s *Store) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	if err := s.checkWritable(collection); err != nil {
		return "", err
	}
	if !isObject(data) {
		return "", ErrInvalidData
	}

	now := s.now().UTC()
	doc := &model.Document{
		Collection: collection,
		ID:         s.ids.New(),
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, doc); err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	s.Notify(ctx, collection)
	return doc.ID, nil
}

// Set は指定IDのドキュメントを作成、または全体を置き換える。
func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := s.checkWritable(collection); err != nil {
		return err
	}
	if !isObject(data) {
		return ErrInvalidData
	}

	now := s.now().UTC()
	doc := &model.Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.Notify(ctx, collection)
	return nil
}

// Update はトップレベルのフィールドをマージ更新する。
// ドキュメントが存在しない場合はErrNotFoundを返す。
func (s *Store) Update(ctx context.Context, collection, id string, patch json.RawMessage) error {
	if err := s.checkWritable(collection); err != nil {
		return err
	}
	if !isObject(patch) {
		return ErrInvalidData
	}

	found, err := s.repo.Merge(ctx, collection, id, patch, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if !found {
		return ErrNotFound
	}
	s.Notify(ctx, collection)
	return nil
}

// Delete はドキュメントを削除する。存在しないIDの削除も成功とする。
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.checkWritable(collection); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	s.Notify(ctx, collection)
	return nil
}

// Get は指定ドキュメントを返す。見つからない場合はnilを返す。
func (s *Store) Get(ctx context.Context, collection, id string) (*model.Document, error) {
	if !knownCollections[collection] {
		return nil, ErrUnknownCollection
	}
	if src := s.virtualSource(collection); src != nil {
		docs, err := src.Documents(ctx)
		if err != nil {
			return nil, err
		}
		for i := range docs {
			if docs[i].ID == id {
				return &docs[i], nil
			}
		}
		return nil, nil
	}
	return s.repo.FindByID(ctx, collection, id)
}

// List はコレクションの全ドキュメントを作成日時順に返す。
func (s *Store) List(ctx context.Context, collection string) ([]model.Document, error) {
	if !knownCollections[collection] {
		return nil, ErrUnknownCollection
	}
	if src := s.virtualSource(collection); src != nil {
		return src.Documents(ctx)
	}
	return s.repo.ListByCollection(ctx, collection)
}

// Count はコレクションのドキュメント数を返す。
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if !knownCollections[collection] {
		return 0, ErrUnknownCollection
	}
	if src := s.virtualSource(collection); src != nil {
		docs, err := src.Documents(ctx)
		if err != nil {
			return 0, err
		}
		return len(docs), nil
	}
	return s.repo.CountByCollection(ctx, collection)
}

// Subscribe はコレクションのスナップショットを購読する。
func (s *Store) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, error) {
	if !knownCollections[collection] {
		return nil, ErrUnknownCollection
	}
	return s.hub.Subscribe(ctx, collection)
}

// Notify はコレクションの変更をローカルの購読者と他インスタンスへ通知する。
// 仮想コレクションの元データを更新した側もこれを呼び出す。
func (s *Store) Notify(ctx context.Context, collection string) {
	go s.hub.Refresh(context.WithoutCancel(ctx), collection)

	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()
	if b == nil {
		return
	}
	if err := b.Broadcast(ctx, collection); err != nil {
		s.logger.Warn("change broadcast failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) checkWritable(collection string) error {
	if !knownCollections[collection] {
		return ErrUnknownCollection
	}
	if s.virtualSource(collection) != nil {
		return ErrReadOnly
	}
	return nil
}

func (s *Store) virtualSource(collection string) VirtualCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.virtual[collection]
}

func isObject(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// IsKnownCollection はコレクション名が定義済みかどうかを返す。
func IsKnownCollection(collection string) bool {
	return knownCollections[collection]
}
