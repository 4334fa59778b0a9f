package shutdown

import (
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"productstudio/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.NewLoggerFromCore(zaptest.NewLogger(t).Core(), true)
}

func interruptSignal() os.Signal { return os.Interrupt }
