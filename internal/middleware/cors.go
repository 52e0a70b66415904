package middleware

import (
	"net/http"
	"strings"
)

type corsPolicy struct {
	allowAll bool
	exact    map[string]struct{}
	// suffixes 来自 "https://*.example.com" 形式的通配项，保存为 "https://" + ".example.com"
	suffixes [][2]string
}

// CORS 生成允许指定来源访问的跨域中间件。支持 "*" 与子域名通配。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowedOrigin := policy.resolve(r.Header.Get("Origin"))
			if allowedOrigin != "" {
				writeCORSHeaders(w, allowedOrigin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowedOrigin == "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{exact: map[string]struct{}{}}
	for _, origin := range origins {
		value := strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case value == "":
			continue
		case value == "*":
			p.allowAll = true
		case strings.Contains(value, "://*."):
			scheme, host, _ := strings.Cut(value, "://*")
			p.suffixes = append(p.suffixes, [2]string{scheme + "://", host})
		default:
			p.exact[value] = struct{}{}
		}
	}
	return p
}

func (p corsPolicy) resolve(origin string) string {
	if origin == "" {
		return ""
	}
	if p.allowAll {
		return "*"
	}
	if _, ok := p.exact[origin]; ok {
		return origin
	}
	for _, s := range p.suffixes {
		if strings.HasPrefix(origin, s[0]) && strings.HasSuffix(origin, s[1]) && len(origin) > len(s[0])+len(s[1]) {
			return origin
		}
	}
	return ""
}

func writeCORSHeaders(w http.ResponseWriter, origin string) {
	headers := w.Header()
	headers.Set("Access-Control-Allow-Origin", origin)
	headers.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	headers.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
	headers.Set("Access-Control-Max-Age", "600")

	if origin != "*" {
		headers.Add("Vary", "Origin")
		headers.Set("Access-Control-Allow-Credentials", "true")
	}
}
