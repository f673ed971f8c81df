package model

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Entity はドキュメントストアの境界で検証される正規スキーマ。
type Entity interface {
	// Normalize は前後空白の除去とデフォルト値の補完を行う。
	Normalize()
	// Validate は必須項目と値の範囲を検証する。失敗時は*APIErrorを返す。
	Validate() error
}

// metaSetter はドキュメントのIDとサーバー付与の作成日時を受け取るエンティティ。
type metaSetter interface {
	setMeta(id string, createdAt time.Time)
}

// Decode はドキュメントを正規スキーマの値に変換する。
// IDと作成日時はドキュメントのメタデータから設定する。
func Decode[T any, PT interface {
	*T
	metaSetter
}](doc Document) (T, error) {
	var v T
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return v, fmt.Errorf("failed to decode %s/%s: %w", doc.Collection, doc.ID, err)
		}
	}
	PT(&v).setMeta(doc.ID, doc.CreatedAt)
	return v, nil
}

// Encode はエンティティを正規化・検証し、保存用のJSONを返す。
// IDと作成日時はストア側で管理するため保存データには含めない。
func Encode[T any, PT interface {
	*T
	Entity
	metaSetter
}](v T) (json.RawMessage, error) {
	p := PT(&v)
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.setMeta("", time.Time{})
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	return data, nil
}

// --- Lead ---

// LeadStatus はリードの対応状況。
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusClosed    LeadStatus = "closed"
)

// LeadStatuses は定義済みのステータスを表示順で返す。
func LeadStatuses() []LeadStatus {
	return []LeadStatus{LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusClosed}
}

// Valid はステータスが定義済みの値かどうかを返す。
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusClosed:
		return true
	default:
		return false
	}
}

// Lead は問い合わせフォームから作成される見込み顧客。
type Lead struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Company   string     `json:"company,omitempty"`
	Service   string     `json:"service,omitempty"`
	Message   string     `json:"message,omitempty"`
	Status    LeadStatus `json:"status"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (l *Lead) setMeta(id string, createdAt time.Time) {
	l.ID = id
	l.CreatedAt = timePtr(createdAt)
}

// Normalize は空白を除去し、未指定のステータスをnewにする。
func (l *Lead) Normalize() {
	l.Name = strings.TrimSpace(l.Name)
	l.Email = strings.TrimSpace(l.Email)
	l.Company = strings.TrimSpace(l.Company)
	l.Service = strings.TrimSpace(l.Service)
	l.Message = strings.TrimSpace(l.Message)
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
}

// Validate はリードの必須項目を検証する。
func (l *Lead) Validate() error {
	if err := requireText("name", l.Name, 200); err != nil {
		return err
	}
	if err := validateEmail("email", l.Email, true); err != nil {
		return err
	}
	if err := limitText("company", l.Company, 200); err != nil {
		return err
	}
	if err := limitText("service", l.Service, 200); err != nil {
		return err
	}
	if err := limitText("message", l.Message, 5000); err != nil {
		return err
	}
	if !l.Status.Valid() {
		return NewValidationError("status", "new、contacted、qualified、closed のいずれかを指定してください")
	}
	return nil
}

// --- Testimonial ---

// Testimonial は顧客の声。
type Testimonial struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Role      string     `json:"role,omitempty"`
	Company   string     `json:"company,omitempty"`
	Content   string     `json:"content"`
	Rating    int        `json:"rating"`
	Image     string     `json:"image,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (t *Testimonial) setMeta(id string, createdAt time.Time) {
	t.ID = id
	t.CreatedAt = timePtr(createdAt)
}

// Normalize は空白を除去し、未指定の評価を5にする。
func (t *Testimonial) Normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.Role = strings.TrimSpace(t.Role)
	t.Company = strings.TrimSpace(t.Company)
	t.Content = strings.TrimSpace(t.Content)
	t.Image = strings.TrimSpace(t.Image)
	if t.Rating == 0 {
		t.Rating = 5
	}
}

// Validate は顧客の声の必須項目を検証する。
func (t *Testimonial) Validate() error {
	if err := requireText("name", t.Name, 200); err != nil {
		return err
	}
	if err := requireText("content", t.Content, 2000); err != nil {
		return err
	}
	if t.Rating < 1 || t.Rating > 5 {
		return NewValidationError("rating", "1から5の範囲で指定してください")
	}
	return nil
}

// --- TeamMember ---

// TeamMember はチーム紹介に掲載するメンバー。
type TeamMember struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Bio       string     `json:"bio,omitempty"`
	Initials  string     `json:"initials,omitempty"`
	Image     string     `json:"image,omitempty"`
	LinkedIn  string     `json:"linkedin,omitempty"`
	Email     string     `json:"email,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (m *TeamMember) setMeta(id string, createdAt time.Time) {
	m.ID = id
	m.CreatedAt = timePtr(createdAt)
}

// Normalize は空白を除去し、未指定のイニシャルを名前から補完する。
func (m *TeamMember) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Role = strings.TrimSpace(m.Role)
	m.Bio = strings.TrimSpace(m.Bio)
	m.Image = strings.TrimSpace(m.Image)
	m.LinkedIn = strings.TrimSpace(m.LinkedIn)
	m.Email = strings.TrimSpace(m.Email)
	m.Initials = strings.TrimSpace(m.Initials)
	if m.Initials == "" {
		m.Initials = Initials(m.Name)
	}
}

// Validate はメンバーの必須項目を検証する。
func (m *TeamMember) Validate() error {
	if err := requireText("name", m.Name, 200); err != nil {
		return err
	}
	if err := requireText("role", m.Role, 200); err != nil {
		return err
	}
	if err := limitText("bio", m.Bio, 1000); err != nil {
		return err
	}
	return validateEmail("email", m.Email, false)
}

// Initials は名前の各単語の先頭文字を大文字で連結する（最大3文字）。
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		if r == utf8.RuneError {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if n++; n == 3 {
			break
		}
	}
	return b.String()
}

// --- Service ---

// SubService はサービス配下の個別メニュー。
type SubService struct {
	Title    string   `json:"title"`
	Features []string `json:"features"`
}

// Service は提供サービス。
type Service struct {
	ID          string       `json:"id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Icon        string       `json:"icon"`
	SubServices []SubService `json:"subServices"`
	CreatedAt   *time.Time   `json:"createdAt,omitempty"`
}

func (s *Service) setMeta(id string, createdAt time.Time) {
	s.ID = id
	s.CreatedAt = timePtr(createdAt)
}

// Normalize は空白を除去し、空の特徴を取り除く。未指定のアイコンはUsersにする。
func (s *Service) Normalize() {
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	s.Icon = strings.TrimSpace(s.Icon)
	if s.Icon == "" {
		s.Icon = "Users"
	}
	if s.SubServices == nil {
		s.SubServices = []SubService{}
	}
	for i := range s.SubServices {
		sub := &s.SubServices[i]
		sub.Title = strings.TrimSpace(sub.Title)
		features := make([]string, 0, len(sub.Features))
		for _, f := range sub.Features {
			if f = strings.TrimSpace(f); f != "" {
				features = append(features, f)
			}
		}
		sub.Features = features
	}
}

// Validate はサービスの必須項目を検証する。
func (s *Service) Validate() error {
	if err := requireText("title", s.Title, 200); err != nil {
		return err
	}
	for i, sub := range s.SubServices {
		if sub.Title == "" {
			return NewValidationError(fmt.Sprintf("subServices[%d].title", i), "必須項目です")
		}
	}
	return nil
}

// --- Settings ---

// NotificationSettings はメール通知の設定。
type NotificationSettings struct {
	NewLeads      bool `json:"newLeads"`
	WeeklyReports bool `json:"weeklyReports"`
}

// SEOSettings は検索エンジン向けのメタ情報。
type SEOSettings struct {
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
}

// Settings はsettings/generalに保存されるサイト全体の設定。
type Settings struct {
	SiteName      string               `json:"siteName"`
	Email         string               `json:"email"`
	Phone         string               `json:"phone"`
	Notifications NotificationSettings `json:"notifications"`
	SEO           SEOSettings          `json:"seo"`
}

func (s *Settings) setMeta(string, time.Time) {}

// Normalize は何もしない。設定は書き込んだ値をそのまま読み戻せることを保証する。
func (s *Settings) Normalize() {}

// Validate は連絡先メールアドレスの形式を検証する。
func (s *Settings) Validate() error {
	if err := limitText("siteName", s.SiteName, 200); err != nil {
		return err
	}
	if err := validateEmail("email", s.Email, false); err != nil {
		return err
	}
	if err := limitText("phone", s.Phone, 50); err != nil {
		return err
	}
	return nil
}

// --- HeroContent ---

// HeroContent はトップページのメインバナー。
type HeroContent struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

func (h *HeroContent) setMeta(string, time.Time) {}

// Normalize は前後の空白を除去する。
func (h *HeroContent) Normalize() {
	h.Title = strings.TrimSpace(h.Title)
	h.Subtitle = strings.TrimSpace(h.Subtitle)
}

// Validate はタイトルが空でないことを検証する。
func (h *HeroContent) Validate() error {
	if err := requireText("title", h.Title, 300); err != nil {
		return err
	}
	return limitText("subtitle", h.Subtitle, 1000)
}

// --- ヘルパー関数 ---

func requireText(field, v string, max int) error {
	if v == "" {
		return NewValidationError(field, "必須項目です")
	}
	return limitText(field, v, max)
}

func limitText(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return NewValidationError(field, fmt.Sprintf("%d文字以内で入力してください", max))
	}
	return nil
}

func validateEmail(field, v string, required bool) error {
	if v == "" {
		if required {
			return NewValidationError(field, "必須項目です")
		}
		return nil
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return NewValidationError(field, "メールアドレスの形式が正しくありません")
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
