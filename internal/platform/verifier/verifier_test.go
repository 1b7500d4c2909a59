package verifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
)

func TestHTTPVerifier_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" || r.URL.Query().Get("api_key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("email") {
		case "jane@gmial.com":
			_, _ = w.Write([]byte(`{"address":"jane@gmial.com","status":"invalid","sub_status":"possible_typo","did_you_mean":"jane@gmail.com"}`))
		case "jane@gmail.com":
			_, _ = w.Write([]byte(`{"address":"jane@gmail.com","status":"valid"}`))
		case "boom@x.com":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"error":"Invalid API Key"}`))
		}
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL+"/", "k", time.Second)
	ctx := context.Background()

	res, err := v.Verify(ctx, "jane@gmial.com")
	require.NoError(t, err)
	require.False(t, res.IsValid)
	require.Equal(t, "invalid", res.ResultCode)
	require.Equal(t, "possible_typo", res.Reason)
	require.Equal(t, "jane@gmail.com", res.DidYouMean)

	res, err = v.Verify(ctx, "jane@gmail.com")
	require.NoError(t, err)
	require.True(t, res.IsValid)

	_, err = v.Verify(ctx, "boom@x.com")
	require.Error(t, err)

	_, err = v.Verify(ctx, "other@x.com")
	require.ErrorContains(t, err, "Invalid API Key")
}

func TestNew_NopWithoutKey(t *testing.T) {
	v := New(&config.Config{}, zap.NewNop().Sugar())
	require.IsType(t, NopVerifier{}, v)
	res, err := v.Verify(context.Background(), "a@b.co")
	require.NoError(t, err)
	require.True(t, res.IsValid)

	v = New(&config.Config{Verifier: config.VerifierConfig{APIKey: "k", BaseURL: "http://x"}}, zap.NewNop().Sugar())
	require.IsType(t, &HTTPVerifier{}, v)
}
