// internal/workers/affiliate/generate-referral-code/handler_test.go
package generatereferralcode

import (
	"context"
	stderrors "errors"
	"regexp"
	"sync"
	"testing"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeShape = regexp.MustCompile(`^[A-Z]{1,6}[0-9]{3}$`)

// memClaimer is an in-memory stand-in for the unique index.
type memClaimer struct {
	mu    sync.Mutex
	taken map[string]bool
	calls int
}

func newMemClaimer() *memClaimer {
	return &memClaimer{taken: map[string]bool{}}
}

func (m *memClaimer) TryClaim(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.taken[code] {
		return false, nil
	}
	m.taken[code] = true
	return true, nil
}

func newTestHandler(t *testing.T) *Handler {
	return NewHandler(LoadConfig(0), logger.NewTestLogger(t))
}

// ==========================
// Prefix
// ==========================

func TestPrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"John Smith", "JOHSMI"},
		{"jo ann", "JOANN"},
		{"Maria Del Carmen Lopez", "MARDEL"},
		{"Al", "AL"},
		{"O'Neil Jr.", "ONEJR"},
		{"  ", DefaultPrefix},
		{"1234 5678", DefaultPrefix},
		{"Zoë Ng", "ZONG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Prefix(tt.name))
		})
	}
}

// ==========================
// Generate
// ==========================

func TestGenerate_FirstAttempt(t *testing.T) {
	h := newTestHandler(t)
	claimer := newMemClaimer()

	out, err := h.Generate(context.Background(), &Input{Name: "John Smith"}, claimer)

	require.NoError(t, err)
	assert.Regexp(t, `^JOHSMI[0-9]{3}$`, out.Code)
	assert.Equal(t, 1, out.Attempts)
}

func TestGenerate_ExhaustedAfterTenCollisions(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	alwaysTaken := ClaimFunc(func(context.Context, string) (bool, error) {
		calls++
		return false, nil
	})

	out, err := h.Generate(context.Background(), &Input{Name: "John Smith"}, alwaysTaken)

	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCodeGenerationExhausted, errors.Normalize(err).Code)
	assert.True(t, stderrors.Is(err, ErrCodeGenerationExhausted))
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestGenerate_StoreErrorAbortsImmediately(t *testing.T) {
	h := newTestHandler(t)
	calls := 0
	down := errors.NewStoreUnavailableError("insert affiliate", stderrors.New("connection refused"))
	failing := ClaimFunc(func(context.Context, string) (bool, error) {
		calls++
		return false, down
	})

	_, err := h.Generate(context.Background(), &Input{Name: "John"}, failing)

	assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.Normalize(err).Code)
	assert.Equal(t, 1, calls)
}

func TestGenerate_RetriesPastCollisions(t *testing.T) {
	h := newTestHandler(t)
	collisions := 3
	claimer := ClaimFunc(func(context.Context, string) (bool, error) {
		if collisions > 0 {
			collisions--
			return false, nil
		}
		return true, nil
	})

	out, err := h.Generate(context.Background(), &Input{Name: "Ann Lee"}, claimer)

	require.NoError(t, err)
	assert.Equal(t, 4, out.Attempts)
}

func TestGenerate_ConcurrentSamePrefixYieldsDistinctCodes(t *testing.T) {
	h := NewHandler(LoadConfig(50), logger.NewNoOpLogger())
	claimer := newMemClaimer()

	const n = 40
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.Generate(context.Background(), &Input{Name: "John Smith"}, claimer)
			if !assert.NoError(t, err) {
				return
			}
			assert.True(t, codeShape.MatchString(out.Code))
			mu.Lock()
			codes[out.Code] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, codes, n)
}

func TestGenerate_SuffixIsZeroPadded(t *testing.T) {
	h := newTestHandler(t)
	// An entropy source of zero bytes always draws 0.
	h.entropy = zeroReader{}

	out, err := h.Generate(context.Background(), &Input{Name: "Bo"}, newMemClaimer())

	require.NoError(t, err)
	assert.Equal(t, "BO000", out.Code)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
