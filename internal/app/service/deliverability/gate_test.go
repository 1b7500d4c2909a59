package deliverability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db/dbtest"
	"github.com/fatflowers/funnelhook/internal/platform/verifier"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/types"
)

type fakeVerifier struct {
	calls int
	res   map[string]*verifier.Result
	err   error
	delay time.Duration
}

func (f *fakeVerifier) Verify(ctx context.Context, email string) (*verifier.Result, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.res[email]; ok {
		return r, nil
	}
	return &verifier.Result{Email: email, IsValid: true, ResultCode: "valid"}, nil
}

type memCache map[string]*verifier.Result

func (m memCache) Get(_ context.Context, email string) (*verifier.Result, bool) {
	r, ok := m[email]
	return r, ok
}

func (m memCache) Set(_ context.Context, email string, res *verifier.Result) { m[email] = res }

func newTestGate(t *testing.T, v verifier.Verifier, c Cache) *Gate {
	t.Helper()
	cfg := &config.Config{Timeouts: config.TimeoutsConfig{Verify: 50 * time.Millisecond}}
	return NewGate(dbtest.New(t), v, NewSuggester(), c, cfg, zap.NewNop().Sugar())
}

func TestGate_ValidAddress(t *testing.T) {
	g := newTestGate(t, &fakeVerifier{}, nopCache{})
	out := g.Check(context.Background(), "jane@gmail.com")
	require.True(t, out.Checked)
	require.True(t, out.Valid)
	require.Nil(t, out.Suggestion)

	var n int64
	require.NoError(t, g.db.Model(&models.EmailBounce{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestGate_InvalidAddressRecordsBounceAndCounts(t *testing.T) {
	v := &fakeVerifier{res: map[string]*verifier.Result{
		"jane@gmial.com": {Email: "jane@gmial.com", IsValid: false, ResultCode: "invalid", Reason: "mailbox_not_found"},
	}}
	g := newTestGate(t, v, nopCache{})
	ctx := context.Background()

	out := g.Check(ctx, "jane@gmial.com")
	require.True(t, out.Checked)
	require.False(t, out.Valid)
	require.NotNil(t, out.Suggestion)
	require.Equal(t, "jane@gmail.com", out.Suggestion.Email)
	require.NotEmpty(t, out.BounceID)

	g.Check(ctx, "jane@gmial.com")

	var bounces []models.EmailBounce
	require.NoError(t, g.db.Find(&bounces).Error)
	require.Len(t, bounces, 1)
	b := bounces[0]
	require.Equal(t, models.NoUserID, b.UserID)
	require.Equal(t, 2, b.BounceCount)
	require.Equal(t, types.BounceStatusPending, b.Status)
	require.Equal(t, "jane@gmail.com", *b.SuggestedEmail)
	require.Equal(t, SuggestionSourceDomainTypo, *b.SuggestionSource)
	require.Equal(t, BounceTypePrePurchase, b.BounceType)
}

func TestGate_StatusOnlyChangesByAdmin(t *testing.T) {
	v := &fakeVerifier{res: map[string]*verifier.Result{
		"x@corp.example": {IsValid: false, ResultCode: "invalid"},
	}}
	g := newTestGate(t, v, nopCache{})
	ctx := context.Background()

	out := g.Check(ctx, "x@corp.example")
	require.Nil(t, out.Suggestion)
	require.NoError(t, g.db.Model(&models.EmailBounce{}).Where("id = ?", out.BounceID).
		Update("status", types.BounceStatusIgnored).Error)

	g.Check(ctx, "x@corp.example")
	var b models.EmailBounce
	require.NoError(t, g.db.First(&b, "id = ?", out.BounceID).Error)
	require.Equal(t, types.BounceStatusIgnored, b.Status)
	require.Equal(t, 2, b.BounceCount)
}

func TestGate_VerifierSuggestionWins(t *testing.T) {
	v := &fakeVerifier{res: map[string]*verifier.Result{
		"jane@gmial.com": {IsValid: false, ResultCode: "invalid", DidYouMean: "jane.d@gmail.com"},
	}}
	g := newTestGate(t, v, nopCache{})
	out := g.Check(context.Background(), "jane@gmial.com")
	require.Equal(t, "jane.d@gmail.com", out.Suggestion.Email)
	require.Equal(t, SuggestionSourceVerifier, out.Suggestion.Source)
}

func TestGate_VerifierFailureIsNonBlocking(t *testing.T) {
	for name, v := range map[string]*fakeVerifier{
		"error":   {err: errors.New("503")},
		"timeout": {delay: time.Second},
	} {
		t.Run(name, func(t *testing.T) {
			g := newTestGate(t, v, nopCache{})
			start := time.Now()
			out := g.Check(context.Background(), "jane@x.com")
			require.Less(t, time.Since(start), 500*time.Millisecond)
			require.False(t, out.Checked)
			require.NotEmpty(t, out.Error)

			var n int64
			require.NoError(t, g.db.Model(&models.EmailBounce{}).Count(&n).Error)
			require.Zero(t, n)
		})
	}
}

func TestGate_UsesCache(t *testing.T) {
	v := &fakeVerifier{}
	c := memCache{}
	g := newTestGate(t, v, c)
	ctx := context.Background()

	require.False(t, g.Check(ctx, "jane@x.com").Cached)
	out := g.Check(ctx, "jane@x.com")
	require.True(t, out.Cached)
	require.True(t, out.Valid)
	require.Equal(t, 1, v.calls)
}
