package middleware

import (
	"net/http"
	"time"
)

// sessionCookieName はセッショントークンを保持するCookieの名前。
const sessionCookieName = "session_id"

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

// SessionToken はリクエストのCookieからセッショントークンを取得する。未設定の場合は空文字列を返す。
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie はセッショントークンをHttpOnly Cookieに設定する。
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, config CookieConfig) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
