package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initLogger mirrors cmd/gate's zap setup: console encoding, colorized
// levels, ISO8601 timestamps, development config under --debug.
func initLogger(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}
