package middleware

import "net/http"

// NewForwardedURLMiddleware はプロキシ背後での実効URLを再構成するミドルウェアを返す。
// hostヘッダーとx-forwarded-protoヘッダーをr.URLに反映し、
// 下流が絶対URLを必要とする場合に備える。パスやクエリは変更しない。
func NewForwardedURLMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Host == "" && r.Host != "" {
				r.URL.Host = r.Host
			}
			if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
				r.URL.Scheme = proto
			} else if r.URL.Scheme == "" {
				if r.TLS != nil {
					r.URL.Scheme = "https"
				} else {
					r.URL.Scheme = "http"
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
