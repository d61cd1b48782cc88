package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type stubValidator struct {
	id  uuid.UUID
	err error
}

func (v stubValidator) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	if v.err != nil {
		return uuid.Nil, v.err
	}
	if token != "good-token" {
		return uuid.Nil, errors.New("unknown token")
	}
	return v.id, nil
}

func TestRequireAuth(t *testing.T) {
	accountID := uuid.New()
	var seen uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccountIDFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth(stubValidator{id: accountID})(next)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer good-token", http.StatusOK},
		{"case-insensitive scheme", "bearer good-token", http.StatusOK},
		{"wrong token", "Bearer bad-token", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Errorf("status = %d, want %d", rec.Code, c.want)
			}
			if c.want == http.StatusOK && seen != accountID {
				t.Errorf("account id in context = %s, want %s", seen, accountID)
			}
		})
	}
}

func TestAccountIDFromCtxWithoutAuth(t *testing.T) {
	if id := AccountIDFromCtx(context.Background()); id != uuid.Nil {
		t.Errorf("unauthenticated context yielded %s", id)
	}
}
