// Package logging provides the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

var log *zap.SugaredLogger

// Init builds the package-level logger. Call once from main before any
// component starts; components log through the package functions below.
func Init(debug bool) error {
	var zl *zap.Logger
	var err error
	if debug {
		zl, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zl, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("logging: init failed: %w", err)
	}
	log = zl.Sugar()
	return nil
}

func get() *zap.SugaredLogger {
	if log == nil {
		zl, _ := zap.NewProduction(zap.AddCallerSkip(1))
		log = zl.Sugar()
	}
	return log
}

// Sync flushes buffered entries. Best-effort; called on shutdown.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func Debugf(template string, args ...interface{}) { get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { get().Errorf(template, args...) }
func Fatalf(template string, args ...interface{}) { get().Fatalf(template, args...) }

func Infow(msg string, keysAndValues ...interface{})  { get().Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { get().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { get().Errorw(msg, keysAndValues...) }
