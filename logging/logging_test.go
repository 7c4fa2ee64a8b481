package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("pattern not found", "image", 3)
	logger.Debug("noise")
	logger.Sublogger("solver").Errorf("solve failed after %d iterations", 30)

	test.That(t, logs.Len(), test.ShouldEqual, 3)
	test.That(t, FilterMessages(logs, INFO, "PATTERN"), test.ShouldHaveLength, 1)
	test.That(t, FilterMessages(logs, WARN, ""), test.ShouldHaveLength, 1)

	entry := FilterMessages(logs, INFO, "pattern")[0]
	test.That(t, entry.ContextMap()["image"], test.ShouldEqual, int64(3))
}

func TestLevels(t *testing.T) {
	logger := NewTestLogger(t)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.want)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestSubloggerSharesLevel(t *testing.T) {
	logger := NewBlankLogger("root")
	sub := logger.Sublogger("child")
	logger.SetLevel(ERROR)
	test.That(t, sub.GetLevel(), test.ShouldEqual, ERROR)
	test.That(t, sub.Sync(), test.ShouldBeNil)
}
