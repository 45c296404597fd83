package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestWebhookSecretMiddleware(t *testing.T) {
	h := WebhookSecretMiddleware("s3cret")(okHandler())

	cases := map[string]int{
		"":       http.StatusUnauthorized,
		"wrong":  http.StatusUnauthorized,
		"s3cret": http.StatusNoContent,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/bot/webhook", nil)
		if header != "" {
			req.Header.Set(SecretTokenHeader, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("заголовок %q: ожидали %d, получили %d", header, want, rec.Code)
		}
	}
}

func TestWebhookSecretDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	WebhookSecretMiddleware("")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("без секрета запрос должен проходить, получили %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("неожиданный ответ healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsNotServedOnMainRouter(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("метрики отдаются отдельным сервером, ожидали 404, получили %d", rec.Code)
	}
}
