package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyWrapped(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(Transientf("provider down")))
	assert.Equal(t, KindStructural, Classify(Structuralf("bad spec")))
	assert.Equal(t, KindFatal, Classify(Fatalf("missing credentials")))

	wrapped := fmt.Errorf("item pipeline: %w", Transient(errors.New("503")))
	assert.Equal(t, KindTransient, Classify(wrapped))
}

func TestClassifyHeuristics(t *testing.T) {
	cases := map[string]Kind{
		"serper returned status 429":    KindTransient,
		"read tcp: i/o timeout":         KindTransient,
		"context deadline exceeded":     KindTransient,
		"dial tcp: connection refused":  KindTransient,
		"upstream 503 unavailable":      KindTransient,
		"invalid character in payload":  KindStructural,
		"missing field task_objectives": KindStructural,
	}
	for msg, want := range cases {
		assert.Equal(t, want, Classify(errors.New(msg)), msg)
	}
}

func TestNilPassthrough(t *testing.T) {
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Structural(nil))
	assert.Nil(t, Fatal(nil))
	assert.False(t, IsRetryable(nil))
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, errors.Is(Transient(base), base))
}
