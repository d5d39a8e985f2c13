package logging

import (
	"log"
	"os"

	"go.uber.org/zap"
)

// Log is the structured logger, SLog its sugared form. Both are ready to
// use after Init; before Init they are no-op loggers so tests that never
// call Init stay quiet.
var (
	Log  = zap.NewNop()
	SLog = Log.Sugar()
)

// Init builds the process logger. Development mode (console encoder,
// debug level) is selected with APP_ENV=development.
func Init() {
	var (
		logger *zap.Logger
		err    error
	)

	if os.Getenv("APP_ENV") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	Log = logger
	SLog = logger.Sugar()
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = Log.Sync()
}
