package handler

import (
	"context"
	"encoding/json"

	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/model"
)

// CollectionAdapter は型付きの docstore.Collection を CollectionEndpoint に適合させるアダプタ。
// リクエストボディは正規スキーマTにデコードしてから渡すため、未知のフィールドは保存されない。
type CollectionAdapter[T any, PT docstore.EntityPtr[T]] struct {
	c       *docstore.Collection[T, PT]
	create  func(ctx context.Context, v T) (string, error)
	replace func(ctx context.Context, id string, v T) error
	patch   func(ctx context.Context, id string, body json.RawMessage) error
}

var _ CollectionEndpoint = (*CollectionAdapter[model.Lead, *model.Lead])(nil)

// NewCollectionAdapter はCollectionAdapterを生成する。
func NewCollectionAdapter[T any, PT docstore.EntityPtr[T]](c *docstore.Collection[T, PT]) *CollectionAdapter[T, PT] {
	return &CollectionAdapter[T, PT]{c: c, create: c.Create, replace: c.Replace, patch: c.Patch}
}

// WithCreate は作成処理を差し替える。サニタイズ等を伴うサービス層の作成処理を使う場合に指定する。
func (a *CollectionAdapter[T, PT]) WithCreate(fn func(ctx context.Context, v T) (string, error)) *CollectionAdapter[T, PT] {
	a.create = fn
	return a
}

// WithReplace は置き換え処理を差し替える。
func (a *CollectionAdapter[T, PT]) WithReplace(fn func(ctx context.Context, id string, v T) error) *CollectionAdapter[T, PT] {
	a.replace = fn
	return a
}

// WithPatch は部分更新処理を差し替える。
func (a *CollectionAdapter[T, PT]) WithPatch(fn func(ctx context.Context, id string, body json.RawMessage) error) *CollectionAdapter[T, PT] {
	a.patch = fn
	return a
}

// Name はコレクション名を返す。
func (a *CollectionAdapter[T, PT]) Name() string {
	return a.c.Name()
}

// List は全ドキュメントを返す。
func (a *CollectionAdapter[T, PT]) List(ctx context.Context) (any, error) {
	items, err := a.c.List(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Get は指定IDのドキュメントを返す。
func (a *CollectionAdapter[T, PT]) Get(ctx context.Context, id string) (any, error) {
	v, err := a.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Create はボディをデコードして新規作成する。
func (a *CollectionAdapter[T, PT]) Create(ctx context.Context, body json.RawMessage) (string, error) {
	v, err := a.decode(body)
	if err != nil {
		return "", err
	}
	return a.create(ctx, v)
}

// Replace はボディをデコードしてドキュメント全体を置き換える。
func (a *CollectionAdapter[T, PT]) Replace(ctx context.Context, id string, body json.RawMessage) error {
	if _, err := a.c.Get(ctx, id); err != nil {
		return err
	}
	v, err := a.decode(body)
	if err != nil {
		return err
	}
	return a.replace(ctx, id, v)
}

// Patch はボディに含まれるフィールドのみを更新する。
func (a *CollectionAdapter[T, PT]) Patch(ctx context.Context, id string, body json.RawMessage) error {
	return a.patch(ctx, id, body)
}

func (a *CollectionAdapter[T, PT]) decode(body json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, model.NewInvalidRequestError()
	}
	return v, nil
}
