package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eliteeight/site/internal/model"
)

// memoryRepo はテスト用のインメモリDocumentRepository。
type memoryRepo struct {
	mu      sync.Mutex
	docs    map[string]model.Document
	calls   int
	failErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: make(map[string]model.Document)}
}

func key(collection, id string) string { return collection + "/" + id }

func (r *memoryRepo) Insert(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failErr != nil {
		return r.failErr
	}
	if _, ok := r.docs[key(doc.Collection, doc.ID)]; ok {
		return errors.New("duplicate key")
	}
	r.docs[key(doc.Collection, doc.ID)] = *doc
	return nil
}

func (r *memoryRepo) Upsert(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failErr != nil {
		return r.failErr
	}
	next := *doc
	if cur, ok := r.docs[key(doc.Collection, doc.ID)]; ok {
		next.CreatedAt = cur.CreatedAt
	}
	r.docs[key(doc.Collection, doc.ID)] = next
	return nil
}

func (r *memoryRepo) Merge(_ context.Context, collection, id string, patch json.RawMessage, updatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failErr != nil {
		return false, r.failErr
	}
	cur, ok := r.docs[key(collection, id)]
	if !ok {
		return false, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(cur.Data, &fields); err != nil {
		return false, err
	}
	var p map[string]json.RawMessage
	if err := json.Unmarshal(patch, &p); err != nil {
		return false, err
	}
	for k, v := range p {
		fields[k] = v
	}
	merged, _ := json.Marshal(fields)
	cur.Data = merged
	cur.UpdatedAt = updatedAt
	r.docs[key(collection, id)] = cur
	return true, nil
}

func (r *memoryRepo) Delete(_ context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failErr != nil {
		return r.failErr
	}
	delete(r.docs, key(collection, id))
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, collection, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	doc, ok := r.docs[key(collection, id)]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (r *memoryRepo) ListByCollection(_ context.Context, collection string) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	docs := []model.Document{}
	for _, d := range r.docs {
		if d.Collection == collection {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (r *memoryRepo) CountByCollection(ctx context.Context, collection string) (int, error) {
	docs, err := r.ListByCollection(ctx, collection)
	return len(docs), err
}

func (r *memoryRepo) writeCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
