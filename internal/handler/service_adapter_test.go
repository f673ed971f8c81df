package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/model"
)

// fakeDocStore はメモリ上のdocstore.DocumentStore実装。
type fakeDocStore struct {
	docs   map[string]model.Document
	nextID int
	adds   int
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]model.Document)}
}

func (f *fakeDocStore) key(collection, id string) string { return collection + "/" + id }

func (f *fakeDocStore) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	f.nextID++
	f.adds++
	id := fmt.Sprintf("doc-%d", f.nextID)
	f.docs[f.key(collection, id)] = model.Document{Collection: collection, ID: id, Data: data, CreatedAt: time.Now()}
	return id, nil
}

func (f *fakeDocStore) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	f.docs[f.key(collection, id)] = model.Document{Collection: collection, ID: id, Data: data, CreatedAt: time.Now()}
	return nil
}

func (f *fakeDocStore) Update(ctx context.Context, collection, id string, patch json.RawMessage) error {
	doc, ok := f.docs[f.key(collection, id)]
	if !ok {
		return docstore.ErrNotFound
	}
	var current, fields map[string]json.RawMessage
	_ = json.Unmarshal(doc.Data, &current)
	_ = json.Unmarshal(patch, &fields)
	for k, v := range fields {
		current[k] = v
	}
	doc.Data, _ = json.Marshal(current)
	f.docs[f.key(collection, id)] = doc
	return nil
}

func (f *fakeDocStore) Delete(ctx context.Context, collection, id string) error {
	delete(f.docs, f.key(collection, id))
	return nil
}

func (f *fakeDocStore) Get(ctx context.Context, collection, id string) (*model.Document, error) {
	doc, ok := f.docs[f.key(collection, id)]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (f *fakeDocStore) List(ctx context.Context, collection string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.Collection == collection {
			out = append(out, d)
		}
	}
	return out, nil
}

func newTeamAdapter(store docstore.DocumentStore) *CollectionAdapter[model.TeamMember, *model.TeamMember] {
	return NewCollectionAdapter(docstore.NewCollection[model.TeamMember, *model.TeamMember](
		model.CollectionTeam, store, model.Decode[model.TeamMember], model.Encode[model.TeamMember],
	))
}

func TestCollectionAdapter_Create_ValidatesBeforeStore(t *testing.T) {
	store := newFakeDocStore()
	a := newTeamAdapter(store)

	_, err := a.Create(context.Background(), json.RawMessage(`{"bio":"no name"}`))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if store.adds != 0 {
		t.Errorf("adds = %d, want 0", store.adds)
	}
}

func TestCollectionAdapter_Create_IgnoresClientSuppliedID(t *testing.T) {
	store := newFakeDocStore()
	a := newTeamAdapter(store)

	id, err := a.Create(context.Background(), json.RawMessage(`{"id":"forged","name":"Ada Lovelace","role":"CTO"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "forged" {
		t.Error("client-supplied id must not be used")
	}

	got, err := a.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	member := got.(*model.TeamMember)
	if member.ID != id || member.Initials != "AL" {
		t.Errorf("member = %+v", member)
	}
}

func TestCollectionAdapter_IdenticalSubmissionsCreateDistinctDocuments(t *testing.T) {
	store := newFakeDocStore()
	a := newTeamAdapter(store)
	body := json.RawMessage(`{"name":"Ada","role":"CTO"}`)

	id1, err1 := a.Create(context.Background(), body)
	id2, err2 := a.Create(context.Background(), body)
	if err1 != nil || err2 != nil {
		t.Fatalf("Create errors: %v, %v", err1, err2)
	}
	if id1 == id2 {
		t.Errorf("ids = %q, %q; want distinct", id1, id2)
	}
}

func TestCollectionAdapter_Replace_MissingDocument(t *testing.T) {
	a := newTeamAdapter(newFakeDocStore())

	err := a.Replace(context.Background(), "missing", json.RawMessage(`{"name":"Ada","role":"CTO"}`))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDocumentNotFound {
		t.Errorf("err = %v, want DOCUMENT_NOT_FOUND", err)
	}
}

func TestCollectionAdapter_WithCreate(t *testing.T) {
	var got model.TeamMember
	a := newTeamAdapter(newFakeDocStore()).WithCreate(func(ctx context.Context, v model.TeamMember) (string, error) {
		got = v
		return "custom", nil
	})

	id, err := a.Create(context.Background(), json.RawMessage(`{"name":"Ada","role":"CTO"}`))
	if err != nil || id != "custom" {
		t.Fatalf("Create = (%q, %v)", id, err)
	}
	if got.Name != "Ada" {
		t.Errorf("create received %+v", got)
	}
}

func TestCollectionAdapter_WithReplaceAndPatch(t *testing.T) {
	store := newFakeDocStore()
	base := newTeamAdapter(store)
	id, err := base.Create(context.Background(), json.RawMessage(`{"name":"Ada","role":"CTO"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var replaced model.TeamMember
	var patched json.RawMessage
	a := base.
		WithReplace(func(ctx context.Context, gotID string, v model.TeamMember) error {
			replaced = v
			return nil
		}).
		WithPatch(func(ctx context.Context, gotID string, body json.RawMessage) error {
			patched = body
			return nil
		})

	if err := a.Replace(context.Background(), id, json.RawMessage(`{"name":"Grace","role":"CEO"}`)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if replaced.Name != "Grace" {
		t.Errorf("replace received %+v", replaced)
	}
	if err := a.Patch(context.Background(), id, json.RawMessage(`{"role":"CFO"}`)); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if string(patched) != `{"role":"CFO"}` {
		t.Errorf("patch received %s", patched)
	}
}

func TestCollectionAdapter_Create_MalformedBody(t *testing.T) {
	a := newTeamAdapter(newFakeDocStore())

	_, err := a.Create(context.Background(), json.RawMessage(`["not","an","object"]`))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
