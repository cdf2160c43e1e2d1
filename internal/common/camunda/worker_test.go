package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Name string `json:"name"`
}

type echoOutput struct {
	Greeting string `json:"greeting"`
}

func TestJob_Process_DecodesAndExecutes(t *testing.T) {
	job := NewJob("echo", time.Second, func(ctx context.Context, in *echoInput) (*echoOutput, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return &echoOutput{Greeting: "hi " + in.Name}, nil
	}, logger.NewTestLogger(t))

	out, err := job.Process(context.Background(), `{"name":"jo"}`)
	require.NoError(t, err)
	assert.Equal(t, "hi jo", out.Greeting)
}

func TestJob_Process_BadVariables(t *testing.T) {
	called := false
	job := NewJob("echo", 0, func(ctx context.Context, in *echoInput) (*echoOutput, error) {
		called = true
		return nil, nil
	}, logger.NewNoOpLogger())

	_, err := job.Process(context.Background(), `{"name":`)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.Normalize(err).Code)
	assert.False(t, called)
}

func TestJob_Process_PropagatesOperationError(t *testing.T) {
	boom := errors.NewStoreTimeoutError("insert lead", stderrors.New("deadline"))
	job := NewJob("echo", 0, func(ctx context.Context, in *echoInput) (*echoOutput, error) {
		return nil, boom
	}, logger.NewNoOpLogger())

	_, err := job.Process(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		code errors.ErrorCode
	}{
		{"rpc error: code = DeadlineExceeded desc = context deadline exceeded", errors.ErrCodeExternalTimeout},
		{"rpc error: code = Unauthenticated desc = unauthenticated", errors.ErrCodeAuthentication},
		{"rpc error: code = Unavailable desc = connection refused", errors.ErrCodeExternalService},
	}
	for _, tt := range tests {
		err := mapZeebeError(stderrors.New(tt.msg), "topology")
		assert.Equal(t, tt.code, errors.Normalize(err).Code, tt.msg)
	}
}
