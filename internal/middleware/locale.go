package middleware

import (
	"context"
	"net/http"
	"strings"
)

type localeContextKey struct{}

// Locale resolves the request locale and stores it in the context. The
// pipeline uses it for script synthesis when a submission does not name a
// locale explicitly. Precedence: X-Locale header, first Accept-Language tag,
// configured default.
func Locale(defaultLocale string) func(http.Handler) http.Handler {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := normalizeLocale(r.Header.Get("X-Locale"))
			if locale == "" {
				locale = parseAcceptLanguage(r.Header.Get("Accept-Language"))
			}
			if locale == "" {
				locale = defaultLocale
			}
			ctx := context.WithValue(r.Context(), localeContextKey{}, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeContextKey{}).(string); ok {
		return v
	}
	return "en"
}

func parseAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		if locale := normalizeLocale(strings.Split(part, ";")[0]); locale != "" {
			return locale
		}
	}
	return ""
}

// normalizeLocale lowercases a BCP 47 tag and keeps only the primary
// language subtag; the providers accept bare language codes.
func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" || locale == "*" {
		return ""
	}
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}
	return locale
}
