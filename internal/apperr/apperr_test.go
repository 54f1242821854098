package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", Validation("upload", errors.New("bad type")), false},
		{"quality", Quality("extract", errors.New("empty"), "hint"), false},
		{"not found", NotFound("download", errors.New("missing")), false},
		{"transient", Transient("embed", errors.New("timeout")), true},
		{"wrapped transient", fmt.Errorf("outer: %w", Transient("embed", errors.New("x"))), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"openai 429", &openai.Error{StatusCode: 429}, true},
		{"openai 503", &openai.Error{StatusCode: 503}, true},
		{"openai 400", &openai.Error{StatusCode: 400}, false},
		{"openai 401", &openai.Error{StatusCode: 401}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad vector"), false},
		{"grpc not found", status.Error(codes.NotFound, "no collection"), false},
		{"plain", errors.New("connection reset"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestHintOf(t *testing.T) {
	err := Quality("extract", errors.New("no text"), "document may be image-based with no extractable text")
	stageErr := NewStageError("extract", fmt.Errorf("extract: %w", err))

	assert.Equal(t, "document may be image-based with no extractable text", stageErr.Hint)
	assert.Equal(t, stageErr.Hint, HintOf(stageErr))
	assert.Equal(t, KindQuality, KindOf(stageErr))
	assert.Contains(t, stageErr.Error(), "stage extract failed")
}

func TestWithHint(t *testing.T) {
	base := errors.New("file has not been decrypted")
	err := WithHint(base, KindValidation, "document is password protected")

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "document is password protected", HintOf(err))
	assert.ErrorIs(t, err, base)

	assert.Nil(t, WithHint(nil, KindValidation, "x"))
}
