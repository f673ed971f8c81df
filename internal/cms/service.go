// Package cms はサイトコンテンツ（顧客の声、チーム、サービス、設定、ヒーロー）の管理と
// 公開ページ向けの読み出しを提供する。
package cms

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/eliteeight/site/internal/defaults"
	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/model"
)

// 公開読み出しのデータ元
const (
	SourceStore   = "store"
	SourceDefault = "default"
)

// DefaultsSource は同梱コンテンツの取得元。defaults.Providerが実装する。
type DefaultsSource interface {
	Current() *defaults.Content
}

// Public は公開ページ向けの読み出し結果。
type Public[T any] struct {
	Items  []T    `json:"items"`
	Source string `json:"source"`
}

// Single は公開ページ向けの単一ドキュメントの読み出し結果。
type Single[T any] struct {
	Item   T      `json:"item"`
	Source string `json:"source"`
}

// Service はコンテンツ管理のサービス層。
type Service struct {
	store        docstore.DocumentStore
	defaults     DefaultsSource
	testimonials *docstore.Collection[model.Testimonial, *model.Testimonial]
	team         *docstore.Collection[model.TeamMember, *model.TeamMember]
	services     *docstore.Collection[model.Service, *model.Service]
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store docstore.DocumentStore, defaults DefaultsSource) *Service {
	return &Service{
		store:    store,
		defaults: defaults,
		testimonials: docstore.NewCollection[model.Testimonial, *model.Testimonial](
			model.CollectionTestimonials, store, model.Decode[model.Testimonial], model.Encode[model.Testimonial],
		),
		team: docstore.NewCollection[model.TeamMember, *model.TeamMember](
			model.CollectionTeam, store, model.Decode[model.TeamMember], model.Encode[model.TeamMember],
		),
		services: docstore.NewCollection[model.Service, *model.Service](
			model.CollectionServices, store, model.Decode[model.Service], model.Encode[model.Service],
		),
	}
}

// Testimonials は顧客の声のコレクションを返す。
func (s *Service) Testimonials() *docstore.Collection[model.Testimonial, *model.Testimonial] {
	return s.testimonials
}

// Team はチームメンバーのコレクションを返す。
func (s *Service) Team() *docstore.Collection[model.TeamMember, *model.TeamMember] {
	return s.team
}

// Services は提供サービスのコレクションを返す。
func (s *Service) Services() *docstore.Collection[model.Service, *model.Service] {
	return s.services
}

// PublicServices は公開ページ用のサービス一覧を返す。
// ストアが空、または読み出しに失敗した場合は同梱の内容を返し、エラーはログにのみ記録する。
func (s *Service) PublicServices(ctx context.Context) Public[model.Service] {
	return publicList(ctx, s.services, s.defaults.Current().Services)
}

// PublicTestimonials は公開ページ用の顧客の声を返す。
func (s *Service) PublicTestimonials(ctx context.Context) Public[model.Testimonial] {
	return publicList(ctx, s.testimonials, s.defaults.Current().Testimonials)
}

// PublicTeam は公開ページ用のチームメンバーを返す。
func (s *Service) PublicTeam(ctx context.Context) Public[model.TeamMember] {
	return publicList(ctx, s.team, s.defaults.Current().Team)
}

// PublicHero は公開ページ用のヒーローコンテンツを返す。
func (s *Service) PublicHero(ctx context.Context) Single[model.HeroContent] {
	hero, source, err := s.hero(ctx)
	if err != nil {
		logFallback(model.CollectionContent, err)
		return Single[model.HeroContent]{Item: s.defaults.Current().Hero, Source: SourceDefault}
	}
	return Single[model.HeroContent]{Item: hero, Source: source}
}

// PublicSettings は公開ページ用のサイト名と連絡先を返す。
// 通知設定は公開しない。
func (s *Service) PublicSettings(ctx context.Context) Single[model.Settings] {
	settings, source, err := s.settings(ctx)
	if err != nil {
		logFallback(model.CollectionSettings, err)
		settings, source = s.defaults.Current().Settings, SourceDefault
	}
	settings.Notifications = model.NotificationSettings{}
	return Single[model.Settings]{Item: settings, Source: source}
}

// Settings は管理画面用の設定を返す。未保存の場合は同梱の既定値を返す。
func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	settings, _, err := s.settings(ctx)
	return settings, err
}

// SaveSettings は設定全体を置き換える。保存した値がそのまま読み戻される。
func (s *Service) SaveSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	data, err := model.Encode(settings)
	if err != nil {
		return model.Settings{}, err
	}
	if err := s.store.Set(ctx, model.CollectionSettings, model.SettingsGeneralID, data); err != nil {
		return model.Settings{}, fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	slog.Info("設定を保存しました")
	return settings, nil
}

// Hero は管理画面用のヒーローコンテンツを返す。未保存の場合は同梱の既定値を返す。
func (s *Service) Hero(ctx context.Context) (model.HeroContent, error) {
	hero, _, err := s.hero(ctx)
	return hero, err
}

// SaveHero はヒーローコンテンツ全体を置き換える。
func (s *Service) SaveHero(ctx context.Context, hero model.HeroContent) (model.HeroContent, error) {
	data, err := model.Encode(hero)
	if err != nil {
		return model.HeroContent{}, err
	}
	if err := s.store.Set(ctx, model.CollectionContent, model.ContentHeroID, data); err != nil {
		return model.HeroContent{}, fmt.Errorf("ヒーローコンテンツの保存に失敗しました: %w", err)
	}
	hero.Normalize()
	slog.Info("ヒーローコンテンツを保存しました")
	return hero, nil
}

func (s *Service) settings(ctx context.Context) (model.Settings, string, error) {
	doc, err := s.store.Get(ctx, model.CollectionSettings, model.SettingsGeneralID)
	if err != nil {
		return model.Settings{}, "", fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	if doc == nil {
		return s.defaults.Current().Settings, SourceDefault, nil
	}
	settings, err := model.Decode[model.Settings](*doc)
	if err != nil {
		return model.Settings{}, "", err
	}
	return settings, SourceStore, nil
}

func (s *Service) hero(ctx context.Context) (model.HeroContent, string, error) {
	doc, err := s.store.Get(ctx, model.CollectionContent, model.ContentHeroID)
	if err != nil {
		return model.HeroContent{}, "", fmt.Errorf("ヒーローコンテンツの取得に失敗しました: %w", err)
	}
	if doc == nil {
		return s.defaults.Current().Hero, SourceDefault, nil
	}
	hero, err := model.Decode[model.HeroContent](*doc)
	if err != nil {
		return model.HeroContent{}, "", err
	}
	return hero, SourceStore, nil
}

func publicList[T any, PT docstore.EntityPtr[T]](ctx context.Context, c *docstore.Collection[T, PT], fallback []T) Public[T] {
	items, err := c.List(ctx)
	if err != nil {
		logFallback(c.Name(), err)
		return Public[T]{Items: slices.Clone(fallback), Source: SourceDefault}
	}
	if len(items) == 0 {
		return Public[T]{Items: slices.Clone(fallback), Source: SourceDefault}
	}
	return Public[T]{Items: items, Source: SourceStore}
}

func logFallback(collection string, err error) {
	slog.Warn("ストアの読み出しに失敗したため既定のコンテンツを表示します",
		slog.String("collection", collection),
		slog.String("error", err.Error()),
	)
}
