// Package debugflags gates the trace logging fasl.cpp emits via dscwritef
// calls guarded by DF_SHOW_FAST_LOAD_FORMS, DF_FASL_SHOW_OPCODES, and
// DF_SHOW_FAST_LOAD_UNITS. Those were compile-time/runtime debug switches in
// the source; here they are named flags backed by viper configuration
// (environment variable or optional config file), gating zap debug-level
// logs instead of a bespoke dscwritef sink.
package debugflags

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Flag names a single trace point in the FASL decoder.
type Flag string

const (
	// ShowFastLoadForms traces loader DEFINE/APPLY actions as they run,
	// mirroring DF_SHOW_FAST_LOAD_FORMS.
	ShowFastLoadForms Flag = "show-fast-load-forms"
	// FaslShowOpcodes traces every opcode read, with its byte offset,
	// mirroring DF_FASL_SHOW_OPCODES.
	FaslShowOpcodes Flag = "fasl-show-opcodes"
	// ShowFastLoadUnits traces BEGIN_LOAD_UNIT/END_LOAD_UNIT entry and
	// exit, mirroring DF_SHOW_FAST_LOAD_UNITS.
	ShowFastLoadUnits Flag = "show-fast-load-units"
)

var allFlags = []Flag{ShowFastLoadForms, FaslShowOpcodes, ShowFastLoadUnits}

// Flags holds the active set of trace flags plus the logger trace points
// write to when enabled.
type Flags struct {
	mu      sync.RWMutex
	enabled map[Flag]bool
	logger  *zap.Logger
}

// New builds a Flags value with an explicit logger and initial flag set;
// useful for tests that don't want to touch viper/env at all.
func New(logger *zap.Logger, enabled ...Flag) *Flags {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Flags{enabled: make(map[Flag]bool), logger: logger}
	for _, fl := range enabled {
		f.enabled[fl] = true
	}
	return f
}

// Load reads active trace flags from environment variable SCANLISP_DEBUG
// (a comma-separated flag-name list) and an optional scanlisp config file
// in the working directory, parsed as YAML (key "debug", same
// comma-separated shape, or individual boolean keys named after the
// flags). A missing config file is not an error. The logger is a zap
// production logger unless at least one flag ends up enabled (from either
// source), in which case a development logger (human readable, debug
// level enabled) is used.
func Load() (*Flags, error) {
	v := viper.New()
	v.SetEnvPrefix("SCANLISP")
	v.AutomaticEnv()
	v.SetConfigName("scanlisp")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	f := &Flags{enabled: make(map[Flag]bool)}

	raw := v.GetString("debug")
	anyEnabled := false
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f.enabled[Flag(name)] = true
		anyEnabled = true
	}
	for _, fl := range allFlags {
		if v.GetBool(string(fl)) {
			f.enabled[fl] = true
			anyEnabled = true
		}
	}

	var logger *zap.Logger
	var err error
	if anyEnabled {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	f.logger = logger

	return f, nil
}

// Enabled reports whether flag is active.
func (f *Flags) Enabled(flag Flag) bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled[flag]
}

// Set turns flag on or off at runtime.
func (f *Flags) Set(flag Flag, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled == nil {
		f.enabled = make(map[Flag]bool)
	}
	f.enabled[flag] = on
}

// Logger returns the flag set's logger, a no-op logger if none was
// configured.
func (f *Flags) Logger() *zap.Logger {
	if f == nil || f.logger == nil {
		return zap.NewNop()
	}
	return f.logger
}
