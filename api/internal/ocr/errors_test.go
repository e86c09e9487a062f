package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, KindRateLimited},
		{"googleapi 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, KindTransport},
		{"quota in message", errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)"), KindRateLimited},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"safety", errors.New("blocked: candidate: FinishReasonSafety"), KindBlocked},
		{"refused", errors.New("dial tcp: connection refused"), KindTransport},
		{"other", errors.New("something odd"), KindUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify(tc.err, "gemini-test")
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestClassify_KeepsExistingKind(t *testing.T) {
	orig := NewError(KindTimeout, "m", errors.New("race lost"))
	err := Classify(fmt.Errorf("wrapped: %w", orig), "other")
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Nil(t, Classify(nil, "m"))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestEngines_GetEngine(t *testing.T) {
	e := &Engines{}
	assert.False(t, e.Available())

	_, err := e.GetEngine(TierDefault)
	assert.Error(t, err)
	_, err = e.GetEngine("turbo")
	assert.Error(t, err)
}
