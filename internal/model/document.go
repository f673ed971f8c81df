package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// コレクション名
const (
	CollectionLeads        = "leads"
	CollectionTestimonials = "testimonials"
	CollectionTeam         = "team"
	CollectionServices     = "services"
	CollectionUsers        = "users"
	CollectionSettings     = "settings"
	CollectionContent      = "content"
)

// シングルトンドキュメントのID
const (
	SettingsGeneralID = "general"
	ContentHeroID     = "hero"
)

// Document はドキュメントストアに保存される1件のドキュメントを表す。
// Dataは正規スキーマでエンコードされたJSONオブジェクト。
// CreatedAt/UpdatedAtはサーバー側で付与される。
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MarshalJSON はドキュメントをidとタイムスタンプを含むフラットなJSONオブジェクトにする。
// {"id": ..., "createdAt": ..., "updatedAt": ..., <data fields>}
func (d Document) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(d.Data) > 0 {
		if err := json.Unmarshal(d.Data, &fields); err != nil {
			return nil, fmt.Errorf("document %s/%s has non-object data: %w", d.Collection, d.ID, err)
		}
	}

	id, _ := json.Marshal(d.ID)
	fields["id"] = id
	if !d.CreatedAt.IsZero() {
		b, _ := json.Marshal(d.CreatedAt)
		fields["createdAt"] = b
	}
	if !d.UpdatedAt.IsZero() {
		b, _ := json.Marshal(d.UpdatedAt)
		fields["updatedAt"] = b
	}
	return json.Marshal(fields)
}
