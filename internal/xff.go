package internal

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sebest/xff"
)

// XForwardedForToXRealIP rewrites RemoteAddr from X-Forwarded-For (ignoring
// private ranges) and then mirrors it into X-Real-Ip so that handlers only
// have to look at one header.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	xffmw, err := xff.Default()
	if err != nil {
		slog.Error("can't create xff middleware, X-Forwarded-For will be ignored", "err", err)
		return realIPFromRemoteAddr(next)
	}

	return xffmw.Handler(realIPFromRemoteAddr(next))
}

func realIPFromRemoteAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-Ip") == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			r.Header.Set("X-Real-Ip", host)
		}

		next.ServeHTTP(w, r)
	})
}
