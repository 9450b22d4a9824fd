// logger.go: Logger adapters for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import "go.uber.org/zap"

// zapLogger adapts a zap logger to the Logger interface using key/value fields.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger returns a Logger writing through l. A nil l yields a no-op logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{sugar: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, fields ...interface{}) { z.sugar.Debugw(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...interface{})  { z.sugar.Infow(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...interface{})  { z.sugar.Warnw(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...interface{}) { z.sugar.Errorw(msg, fields...) }

// loggerOrNop never returns nil so call sites don't need to check.
func loggerOrNop(l Logger) Logger {
	if l == nil {
		return NewZapLogger(nil)
	}
	return l
}
