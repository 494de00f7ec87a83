// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil wraps zap the way the rest of the codebase expects to
// find it: one process-wide logger, swappable for tests.
package logutil

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var globalLogger atomic.Pointer[zap.Logger]

func init() {
	l, _ := zap.NewProduction()
	globalLogger.Store(l)
}

// SetLogger replaces the global logger, e.g. with a zaptest logger in tests.
func SetLogger(l *zap.Logger) {
	globalLogger.Store(l)
}

// GetLogger returns the current global logger.
func GetLogger() *zap.Logger {
	return globalLogger.Load()
}

func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }
