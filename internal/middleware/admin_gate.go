// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/eliteeight/site/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証ゲートを通過した主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// SessionResolver はセッショントークンから主体を解決するインターフェース。
// auth.Serviceが実装する。
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*model.Principal, error)
	SignOut(ctx context.Context, sessionID string) error
}

// GateRecorder は認証ゲートの判定を記録する。metrics.Collectorが実装する。
type GateRecorder interface {
	RecordGateDecision(decision string)
}

// GateConfig は管理画面認証ゲートの設定。
type GateConfig struct {
	Cookie    CookieConfig
	LoginPath string // ブラウザ遷移を拒否した場合のリダイレクト先
	Recorder  GateRecorder
}

// 判定ラベル。metricsパッケージのラベルと一致させる。
const (
	decisionAdmitted        = "admitted"
	decisionUnauthenticated = "unauthenticated"
	decisionForbidden       = "forbidden"
	decisionError           = "error"
)

// NewAdminGate は管理者のみを通過させるミドルウェアを返す。
// ロールはリクエストごとにusersテーブルの現在値で判定される。
// 解決に失敗した場合は拒否する。
// 認証済みの非管理者はセッションを破棄してから403を返す。
// ブラウザからの遷移（Accept: text/html）はログイン画面へ303でリダイレクトする。
func NewAdminGate(resolver SessionResolver, config GateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				config.record(decisionUnauthenticated)
				denyUnauthenticated(w, r, config)
				return
			}

			principal, err := resolver.Resolve(r.Context(), token)
			if err != nil || principal == nil {
				decision := decisionUnauthenticated
				if err != nil && !isSessionGone(err) {
					decision = decisionError
					slog.Error("failed to resolve session",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				config.record(decision)
				ClearSessionCookie(w, config.Cookie)
				denyUnauthenticated(w, r, config)
				return
			}

			if !principal.IsAdmin() {
				config.record(decisionForbidden)
				if err := resolver.SignOut(r.Context(), principal.SessionID); err != nil {
					slog.Warn("failed to sign out non-admin session",
						slog.String("user_id", principal.UserID),
						slog.String("error", err.Error()),
					)
				}
				ClearSessionCookie(w, config.Cookie)
				slog.Warn("admin access denied",
					slog.String("user_id", principal.UserID),
					slog.String("role", string(principal.Role)),
				)
				if wantsHTML(r) {
					redirectToLogin(w, r, config)
					return
				}
				WriteErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
				return
			}

			config.record(decisionAdmitted)
			annotateRequest(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// PrincipalFromContext は認証ゲートを通過した主体を取得する。
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	return p, ok && p != nil
}

// ContextWithPrincipal はコンテキストに主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// sessionGone はセッションが既に存在しないことを示すエラーが実装する。
type sessionGone interface {
	SessionGone() bool
}

// isSessionGone は期限切れや不正なトークンなど、通常の未認証として扱うエラーかどうかを返す。
func isSessionGone(err error) bool {
	var sg sessionGone
	return errors.As(err, &sg) && sg.SessionGone()
}

func (c GateConfig) record(decision string) {
	if c.Recorder != nil {
		c.Recorder.RecordGateDecision(decision)
	}
}

func denyUnauthenticated(w http.ResponseWriter, r *http.Request, config GateConfig) {
	if wantsHTML(r) {
		redirectToLogin(w, r, config)
		return
	}
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, config GateConfig) {
	login := config.LoginPath
	if login == "" {
		login = "/login"
	}
	target := login + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
