package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eliteeight/site/internal/model"
)

// DocumentStore はCollectionが利用するストア操作。*Storeが実装する。
type DocumentStore interface {
	Add(ctx context.Context, collection string, data json.RawMessage) (string, error)
	Set(ctx context.Context, collection, id string, data json.RawMessage) error
	Update(ctx context.Context, collection, id string, patch json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (*model.Document, error)
	List(ctx context.Context, collection string) ([]model.Document, error)
}

var _ DocumentStore = (*Store)(nil)

// EntityPtr は正規スキーマを持つエンティティへのポインタ型の制約。
type EntityPtr[T any] interface {
	*T
	model.Entity
}

// serverFields は書き込みデータから除外するサーバー管理のフィールド。
var serverFields = map[string]bool{"id": true, "createdAt": true, "updatedAt": true}

// Collection は1つのコレクションを正規スキーマTとして読み書きする。
// 書き込みは全てEncodeによる正規化と検証を通過したものに限られ、
// 検証に失敗した場合はストアを呼び出さない。
type Collection[T any, PT EntityPtr[T]] struct {
	name   string
	store  DocumentStore
	decode func(model.Document) (T, error)
	encode func(T) (json.RawMessage, error)
}

// NewCollection はCollectionを生成する。
// decodeとencodeにはmodel.Decode/model.Encodeのインスタンスを渡す。
func NewCollection[T any, PT EntityPtr[T]](
	name string,
	store DocumentStore,
	decode func(model.Document) (T, error),
	encode func(T) (json.RawMessage, error),
) *Collection[T, PT] {
	return &Collection[T, PT]{name: name, store: store, decode: decode, encode: encode}
}

// Name はコレクション名を返す。
func (c *Collection[T, PT]) Name() string {
	return c.name
}

// List は全ドキュメントをデコードして返す。
// デコードできないドキュメントがあればエラーを返す。
func (c *Collection[T, PT]) List(ctx context.Context) ([]T, error) {
	docs, err := c.store.List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return c.DecodeAll(docs)
}

// DecodeAll はスナップショットのドキュメントをまとめてデコードする。
func (c *Collection[T, PT]) DecodeAll(docs []model.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := c.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get は指定IDのエンティティを返す。存在しない場合はDocumentNotFoundエラーを返す。
func (c *Collection[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError(c.name, id)
	}
	v, err := c.decode(*doc)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create はエンティティを検証して新規作成し、採番されたIDを返す。
func (c *Collection[T, PT]) Create(ctx context.Context, v T) (string, error) {
	data, err := c.encode(v)
	if err != nil {
		return "", err
	}
	return c.store.Add(ctx, c.name, data)
}

// Replace はエンティティを検証して全体を置き換える。
func (c *Collection[T, PT]) Replace(ctx context.Context, id string, v T) error {
	data, err := c.encode(v)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.name, id, data)
}

// Patch はトップレベルのフィールドを部分更新する。
// 現在の値にパッチを重ねて検証し、パッチに含まれるフィールドだけを書き込む。
// 正規化で省略されたフィールドはnullとして書き込む。
func (c *Collection[T, PT]) Patch(ctx context.Context, id string, patch json.RawMessage) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(patch, &keys); err != nil || keys == nil {
		return model.NewInvalidRequestError()
	}

	current, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	merged := *current
	if err := json.Unmarshal(patch, PT(&merged)); err != nil {
		return model.NewInvalidRequestError()
	}
	data, err := c.encode(merged)
	if err != nil {
		return err
	}

	var encoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &encoded); err != nil {
		return fmt.Errorf("decode encoded %s: %w", c.name, err)
	}
	out := make(map[string]json.RawMessage, len(keys))
	for k := range keys {
		if serverFields[k] {
			continue
		}
		if v, ok := encoded[k]; ok {
			out[k] = v
		} else {
			out[k] = json.RawMessage("null")
		}
	}
	if len(out) == 0 {
		return nil
	}

	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode patch for %s/%s: %w", c.name, id, err)
	}
	if err := c.store.Update(ctx, c.name, id, body); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.NewDocumentNotFoundError(c.name, id)
		}
		return err
	}
	return nil
}

// Delete は指定IDのドキュメントを削除する。
func (c *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}
