package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	chi "github.com/go-chi/chi/v5"
)

func TestLambdaHandlerRoutesRequest(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" || r.URL.Query().Get("x") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/audio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xff, 0xfb, 0x00})
	})
	handler := LambdaHandler(r)

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPost,
		Path:                  "/api/v1/journal",
		Headers:               map[string]string{"Authorization": "Bearer t"},
		QueryStringParameters: map[string]string{"x": "1"},
		Body:                  base64.StdEncoding.EncodeToString([]byte(`{"text":"hi"}`)),
		IsBase64Encoded:       true,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if resp.StatusCode != http.StatusCreated || resp.Body != `{"ok":true}` || resp.IsBase64Encoded {
		t.Fatalf("неожиданный ответ: %+v", resp)
	}

	resp, _ = handler(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/audio"})
	if !resp.IsBase64Encoded || resp.Body != base64.StdEncoding.EncodeToString([]byte{0xff, 0xfb, 0x00}) {
		t.Fatalf("бинарный ответ кодируется в base64: %+v", resp)
	}
}
