package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eliteeight/site/internal/defaults"
	"github.com/eliteeight/site/internal/model"
)

// fakeStore はテスト用のインメモリDocumentStore。
type fakeStore struct {
	docs    map[string]model.Document
	order   []string
	writes  int
	deletes int
	readErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]model.Document{}}
}

func docKey(c, id string) string { return c + "/" + id }

func (f *fakeStore) Add(_ context.Context, c string, data json.RawMessage) (string, error) {
	f.writes++
	id := fmt.Sprintf("%s-%d", c, len(f.order)+1)
	now := time.Date(2026, 1, 1, 0, len(f.order), 0, 0, time.UTC)
	f.docs[docKey(c, id)] = model.Document{Collection: c, ID: id, Data: data, CreatedAt: now, UpdatedAt: now}
	f.order = append(f.order, docKey(c, id))
	return id, nil
}

func (f *fakeStore) Set(_ context.Context, c, id string, data json.RawMessage) error {
	f.writes++
	k := docKey(c, id)
	if _, ok := f.docs[k]; !ok {
		f.order = append(f.order, k)
	}
	f.docs[k] = model.Document{Collection: c, ID: id, Data: data}
	return nil
}

func (f *fakeStore) Update(context.Context, string, string, json.RawMessage) error {
	f.writes++
	return errors.New("not supported in fake")
}

func (f *fakeStore) Delete(_ context.Context, c, id string) error {
	f.deletes++
	delete(f.docs, docKey(c, id))
	return nil
}

func (f *fakeStore) Get(_ context.Context, c, id string) (*model.Document, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	doc, ok := f.docs[docKey(c, id)]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (f *fakeStore) List(_ context.Context, c string) ([]model.Document, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	docs := []model.Document{}
	for _, k := range f.order {
		if doc, ok := f.docs[k]; ok && doc.Collection == c {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// staticDefaults は同梱コンテンツを固定で返すDefaultsSource。
type staticDefaults struct {
	content *defaults.Content
}

func (s staticDefaults) Current() *defaults.Content { return s.content }

func bundledDefaults(t *testing.T) staticDefaults {
	t.Helper()
	c, err := defaults.Bundled()
	if err != nil {
		t.Fatalf("Bundled() error = %v", err)
	}
	return staticDefaults{content: c}
}
