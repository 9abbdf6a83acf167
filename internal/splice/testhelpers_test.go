package splice

import (
	"io"
	"log/slog"

	"github.com/soundbed/splice-api/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRecordingRegistry() session.Registry {
	return session.NewMemoryRegistry()
}
