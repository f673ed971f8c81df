package middleware

import (
	"net/http"
	"strings"
)

// publicCacheControl は公開コンテンツのキャッシュ指定。
// 管理画面で保存した内容が1分以内に公開ページへ反映される。
const publicCacheControl = "public, max-age=60"

// NewSecurityHeadersMiddleware はセキュリティヘッダーとキャッシュ指定を付与する。
// APIはJSONとSSEのみを返すため、CSPは全てのリソース読み込みを禁止する。
// 公開コンテンツのGETだけが共有キャッシュを許可され、それ以外はno-storeとなる。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if isCacheablePublicRead(r) {
				h.Set("Cache-Control", publicCacheControl)
			} else {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isCacheablePublicRead(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		strings.HasPrefix(r.URL.Path, "/api/public/") &&
		r.URL.Path != "/api/public/contact"
}
