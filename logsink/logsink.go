// Package logsink fans a single zap logger out to several zapcore.Core
// sinks at once, combining per-sink Write/Sync failures with
// go.uber.org/multierr so independent sinks' independent failures are
// all reported together instead of one masking the rest.
package logsink

import (
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// multiCore is a zapcore.Core that writes every entry to each of its
// cores, continuing past a failing core instead of stopping at the
// first one.
type multiCore struct {
	cores []zapcore.Core
}

// NewTee returns a zapcore.Core that duplicates every entry across
// cores. Unlike zapcore.NewTee, which this replaces, a Write or Sync
// failure on one core does not prevent the others from being tried, and
// all failures are reported together via multierr.
func NewTee(cores ...zapcore.Core) zapcore.Core {
	return &multiCore{cores: cores}
}

func (this *multiCore) Enabled(level zapcore.Level) bool {
	for _, core := range this.cores {
		if core.Enabled(level) {
			return true
		}
	}
	return false
}

func (this *multiCore) With(fields []zapcore.Field) zapcore.Core {
	cores := make([]zapcore.Core, len(this.cores))
	for i, core := range this.cores {
		cores[i] = core.With(fields)
	}
	return &multiCore{cores: cores}
}

func (this *multiCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	for _, core := range this.cores {
		if core.Enabled(entry.Level) {
			checked = checked.AddCore(entry, core)
		}
	}
	return checked
}

func (this *multiCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	var err error
	for _, core := range this.cores {
		err = multierr.Append(err, core.Write(entry, fields))
	}
	return err
}

func (this *multiCore) Sync() error {
	var err error
	for _, core := range this.cores {
		err = multierr.Append(err, core.Sync())
	}
	return err
}
