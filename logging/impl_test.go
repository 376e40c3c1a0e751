package logging

import (
	"context"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("i2c0")
	sub.Infow("configured", "freq", 400000)

	entries := observed.All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "i2c0")
	test.That(t, entries[0].Message, test.ShouldEqual, "configured")
	test.That(t, entries[0].ContextMap()["freq"], test.ShouldEqual, int64(400000))

	subsub := sub.Sublogger("tx")
	subsub.Info("x")
	test.That(t, observed.All()[1].LoggerName, test.ShouldEqual, "i2c0.tx")
}

func TestLevels(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Errorf("kept %d", 2)
	test.That(t, observed.Len(), test.ShouldEqual, 2)

	// A traced context overrides the level for debug logs.
	logger.CDebugf(context.Background(), "dropped")
	logger.CDebugw(context.Background(), "dropped")
	logger.CDebugf(WithTrace(context.Background(), "scan"), "read %d", 2)
	logger.CDebugw(WithTrace(context.Background(), "scan"), "configured", "bus", "i2c0")
	test.That(t, observed.Len(), test.ShouldEqual, 4)
	entries := observed.All()
	test.That(t, entries[2].Message, test.ShouldEqual, "[scan] read 2")
	test.That(t, entries[3].ContextMap()["trace"], test.ShouldEqual, "scan")
	test.That(t, entries[3].ContextMap()["bus"], test.ShouldEqual, "i2c0")

	test.That(t, TraceName(context.Background()), test.ShouldEqual, "")
	test.That(t, TraceName(WithTrace(context.Background(), "")), test.ShouldHaveLength, 6)
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)

	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loud")
}

func TestCaller(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	ctx := context.Background()
	traced := WithTrace(ctx, "scan")

	logger.Infow("configured")
	logger.Debugf("read %d", 1)
	logger.CDebugw(ctx, "initialized", "bus", "pin13")
	logger.CDebugf(ctx, "initialized %s", "pin13")
	logger.CDebugw(traced, "initialized", "bus", "pin13")
	logger.CDebugf(traced, "initialized %s", "pin13")

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 6)
	for _, entry := range entries {
		test.That(t, entry.Caller.Defined, test.ShouldBeTrue)
		test.That(t, filepath.Base(entry.Caller.File), test.ShouldEqual, "impl_test.go")
	}
}
