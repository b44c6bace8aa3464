package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"folioagent/pkg/errors"
)

type trackerMock struct {
	mock.Mock
}

func (m *trackerMock) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	return m.Called(ctx, err, tags).Error(0)
}

func (m *trackerMock) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	return m.Called(ctx, message, level, tags).Error(0)
}

func (m *trackerMock) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core)), logs
}

func TestErrorWithContext_ReportsToTracker(t *testing.T) {
	tracker := &trackerMock{}
	log, logs := observed()
	log = log.WithTracker(tracker).With("component", "gateway")

	ctx := errors.WithUserID(context.Background(), "u1")
	cause := errors.Wrap(errors.ErrUnavailable, "agent stream")
	tags := map[string]string{"mode": "sse"}
	tracker.On("CaptureError", ctx, cause, tags).Return(nil).Once()

	log.ErrorWithContext(ctx, cause, tags)

	tracker.AssertExpectations(t)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "gateway", entry.ContextMap()["component"])
}

func TestErrorf_DefaultTags(t *testing.T) {
	tracker := &trackerMock{}
	log, _ := observed()
	log = log.WithTracker(tracker)

	tracker.On("CaptureError", mock.Anything, mock.MatchedBy(func(err error) bool {
		return err.Error() == "flush failed: 3 rows"
	}), map[string]string{"component": "logger"}).Return(nil).Once()

	log.Errorf("flush failed: %d rows", 3)
	tracker.AssertExpectations(t)
}

func TestWarningsAreNotReported(t *testing.T) {
	tracker := &trackerMock{}
	log, logs := observed()
	log.WithTracker(tracker).Warnw("slow tool", "tool", "getPortfolioSnapshot")

	tracker.AssertNotCalled(t, "CaptureError", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, logs.FilterField(zap.String("tool", "getPortfolioSnapshot")).Len())
}

func TestNopWithoutTracker(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With("k", "v").ErrorWithContext(context.Background(), errors.New("x"), nil)
	})
}
