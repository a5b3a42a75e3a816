package httpapi

import (
	"crypto/subtle"
	"net/http"

	"sttworker/internal/ocs"
)

// authExempt lists routes the AppAPI host probes without credentials.
var authExempt = map[string]bool{
	"/heartbeat": true,
	"/healthz":   true,
	"/readyz":    true,
}

// AppAPIAuth checks the AUTHORIZATION-APP-API header against secret. The
// header carries base64("<user>:<secret>"); the user part is not checked.
// An empty secret disables the check.
func AppAPIAuth(appID, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authExempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if appID != "" && r.Header.Get(ocs.HeaderAppID) != appID {
				writeJSONError(w, http.StatusUnauthorized, "invalid app id")
				return
			}
			_, got, err := ocs.DecodeAuth(r.Header.Get(ocs.HeaderAuth))
			if err != nil || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
