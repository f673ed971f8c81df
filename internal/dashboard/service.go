// Package dashboard は管理画面トップの集計を提供する。
package dashboard

import (
	"context"
	"fmt"

	"github.com/eliteeight/site/internal/lead"
	"github.com/eliteeight/site/internal/model"
)

// RecentLeadCount はダッシュボードに表示する最新リードの件数。
const RecentLeadCount = 5

// Counter はコレクションの件数を返す。docstore.Storeが実装する。
type Counter interface {
	Count(ctx context.Context, collection string) (int, error)
}

// LeadReader はリードの集計と最新一覧を返す。lead.Serviceが実装する。
type LeadReader interface {
	Stats(ctx context.Context) (*lead.Stats, error)
	Recent(ctx context.Context, n int) ([]model.Lead, error)
}

// Summary はダッシュボードの表示内容。
type Summary struct {
	TotalLeads   int          `json:"totalLeads"`
	NewLeads     int          `json:"newLeads"`
	TeamMembers  int          `json:"teamMembers"`
	Testimonials int          `json:"testimonials"`
	Services     int          `json:"services"`
	RecentLeads  []model.Lead `json:"recentLeads"`
}

// Service はダッシュボードのサービス層。
type Service struct {
	counter Counter
	leads   LeadReader
}

// NewService はServiceを生成する。
func NewService(counter Counter, leads LeadReader) *Service {
	return &Service{counter: counter, leads: leads}
}

// Summary は件数と最新リードをまとめて返す。
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	stats, err := s.leads.Stats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.leads.Recent(ctx, RecentLeadCount)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TotalLeads:  stats.Total,
		NewLeads:    stats.ByStatus[model.LeadStatusNew],
		RecentLeads: recent,
	}
	counts := []struct {
		collection string
		dst        *int
	}{
		{model.CollectionTeam, &sum.TeamMembers},
		{model.CollectionTestimonials, &sum.Testimonials},
		{model.CollectionServices, &sum.Services},
	}
	for _, c := range counts {
		n, err := s.counter.Count(ctx, c.collection)
		if err != nil {
			return nil, fmt.Errorf("%sの件数取得に失敗しました: %w", c.collection, err)
		}
		*c.dst = n
	}
	return sum, nil
}
