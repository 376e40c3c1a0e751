package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func (imp *impl) newEntry(logLevel Level) (zapcore.Entry, []zapcore.Field) {
	entry := zapcore.Entry{
		Level:      logLevel.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Caller:     getCaller(),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	return entry, nil
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	return &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	return multierr.Combine(errs...)
}

func (imp *impl) shouldLog(logLevel Level) bool {
	return logLevel >= imp.level.Get()
}

func (imp *impl) write(entry zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

func (imp *impl) log(logLevel Level, args ...interface{}) {
	entry, fields := imp.newEntry(logLevel)
	entry.Message = fmt.Sprint(args...)
	imp.write(entry, fields)
}

func (imp *impl) logf(logLevel Level, template string, args ...interface{}) {
	entry, fields := imp.newEntry(logLevel)
	entry.Message = fmt.Sprintf(template, args...)
	imp.write(entry, fields)
}

// Turns `keysAndValues` into zap fields where the odd elements are the keys and their following
// even counterpart is the value.
func (imp *impl) logw(logLevel Level, msg string, keysAndValues ...interface{}) {
	entry, _ := imp.newEntry(logLevel)
	entry.Message = msg

	fields := make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		keyObj := keysAndValues[keyIdx]
		var keyStr string
		if stringer, ok := keyObj.(fmt.Stringer); ok {
			keyStr = stringer.String()
		} else {
			keyStr = fmt.Sprintf("%v", keyObj)
		}

		if keyIdx+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(keyStr, keysAndValues[keyIdx+1]))
		} else {
			// API mis-use. Rather than dropping it, slip in an error so it shows up.
			fields = append(fields, zap.Any(keyStr, errors.New("unpaired log key")))
		}
	}
	imp.write(entry, fields)
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.log(DEBUG, args...)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.logf(DEBUG, template, args...)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.logw(DEBUG, msg, keysAndValues...)
	}
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	trace := TraceName(ctx)
	switch {
	case trace != "":
		imp.logf(DEBUG, "["+trace+"] "+template, args...)
	case imp.shouldLog(DEBUG):
		imp.logf(DEBUG, template, args...)
	}
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	trace := TraceName(ctx)
	if trace == "" {
		if imp.shouldLog(DEBUG) {
			imp.logw(DEBUG, msg, keysAndValues...)
		}
		return
	}
	fields := make([]interface{}, 0, len(keysAndValues)+2)
	fields = append(fields, keysAndValues...)
	imp.logw(DEBUG, msg, append(fields, "trace", trace)...)
}

func (imp *impl) Info(args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.log(INFO, args...)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.logf(INFO, template, args...)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.logw(INFO, msg, keysAndValues...)
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.log(WARN, args...)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.logf(WARN, template, args...)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.logw(WARN, msg, keysAndValues...)
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.log(ERROR, args...)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.logf(ERROR, template, args...)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.logw(ERROR, msg, keysAndValues...)
	}
}

// getCaller returns the caller of the public Logger method. Every method must reach newEntry
// through exactly one of log, logf or logw so the depth stays fixed.
func getCaller() zapcore.EntryCaller {
	var ok bool
	var entryCaller zapcore.EntryCaller
	const framesToSkip = 4
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(framesToSkip)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true
	if fn := runtime.FuncForPC(entryCaller.PC); fn != nil {
		entryCaller.Function = fn.Name()
	}

	return entryCaller
}
