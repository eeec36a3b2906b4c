package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/doorpin/server/internal/doorpin/apikey"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/store"
)

// actorFrom returns the user authenticated for this request.
func actorFrom(ctx context.Context) store.User {
	u, _ := ctx.Value(actorKey).(store.User)
	return u
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authenticate resolves "Authorization: Bearer <key>". The key's last four
// characters select the stored record and bcrypt verifies the whole key.
func authenticate(creds Credentials, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			suffix, err := apikey.Suffix(key)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}

			rec, err := creds.GetAPIKey(r.Context(), suffix)
			switch {
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			case err != nil:
				logger.Error("api key lookup", slog.Any("err", err))
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
				return
			}
			if !rec.Active || !apikey.Verify(key, rec.Hash) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}

			u, err := creds.GetUser(r.Context(), rec.UserID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			case err != nil:
				logger.Error("api key owner lookup", slog.Any("err", err))
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
				return
			}
			if !u.Active {
				writeError(w, http.StatusForbidden, "inactive", "user is inactive")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, u)))
		})
	}
}

func requirePermission(p permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !permission.HasPermission(actorFrom(r.Context()).Role, p) {
				writeError(w, http.StatusForbidden, "forbidden", "missing permission "+string(p))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
