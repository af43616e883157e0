package middleware

import "net/http"

// NewSecurityHeadersMiddleware はJSON APIとして返すセキュリティヘッダーを付与するミドルウェアを返す。
// hstsが有効な場合はStrict-Transport-Securityを付与する（HTTPSで公開する場合のみ有効にする）。
// 認証付きのリクエストへの応答は注文・住所などの個人情報を含むため、キャッシュを禁止する。
func NewSecurityHeadersMiddleware(hsts bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			if r.Header.Get("Authorization") != "" {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
