// Package defaults はサイトに同梱する初期コンテンツを提供する。
// 公開ページはドキュメントストアが空、または読み出しに失敗した場合にこの内容を表示する。
package defaults

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eliteeight/site/internal/model"
)

//go:embed defaults.yaml
var bundledYAML []byte

// Content は同梱コンテンツ一式。
type Content struct {
	Hero         model.HeroContent   `json:"hero"`
	Settings     model.Settings      `json:"settings"`
	Services     []model.Service     `json:"services"`
	Testimonials []model.Testimonial `json:"testimonials"`
	Team         []model.TeamMember  `json:"team"`
}

// Bundled はバイナリに埋め込まれた初期コンテンツを返す。
func Bundled() (*Content, error) {
	return Parse(bundledYAML)
}

// LoadFile はYAMLファイルから初期コンテンツを読み込む。
func LoadFile(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}
	return Parse(data)
}

// Parse はYAMLを解析し、各エンティティを正規化・検証する。
// キー名はJSONと同じ（subServices、siteName など）。
func Parse(data []byte) (*Content, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse defaults yaml: %w", err)
	}
	// YAMLのキーをJSONタグで解釈するため一度JSONを経由する
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert defaults: %w", err)
	}
	var c Content
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Content) validate() error {
	check := func(section string, i int, e model.Entity) error {
		e.Normalize()
		if err := e.Validate(); err != nil {
			if i < 0 {
				return fmt.Errorf("invalid default %s: %w", section, err)
			}
			return fmt.Errorf("invalid default %s[%d]: %w", section, i, err)
		}
		return nil
	}

	if err := check("hero", -1, &c.Hero); err != nil {
		return err
	}
	if err := check("settings", -1, &c.Settings); err != nil {
		return err
	}
	for i := range c.Services {
		if err := check("services", i, &c.Services[i]); err != nil {
			return err
		}
	}
	for i := range c.Testimonials {
		if err := check("testimonials", i, &c.Testimonials[i]); err != nil {
			return err
		}
	}
	for i := range c.Team {
		if err := check("team", i, &c.Team[i]); err != nil {
			return err
		}
	}
	return nil
}
