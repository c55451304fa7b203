// Package debug provides per-stream, leveled logging: every component logs
// through a named stream backed by its own logrus logger, so one stream's
// verbosity can be raised without drowning the rest, and an optional
// substring filter can silence everything but the components of interest.
//
// Call sites pass a component name first, then a format string.
package debug

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors the -d[=N]/--debug[=N] scale from the CLI (0..5).
type Level int

const (
	LevelNone Level = iota
	LevelErrors
	LevelWarnings
	LevelInfo
	LevelDetails
	LevelEverything
)

func toLogrus(l Level) logrus.Level {
	switch {
	case l <= LevelNone:
		return logrus.PanicLevel
	case l == LevelErrors:
		return logrus.ErrorLevel
	case l == LevelWarnings:
		return logrus.WarnLevel
	case l == LevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// streamState is one named stream: its own logger (and so its own level)
// plus the entry carrying the component field.
type streamState struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

var (
	mu           sync.RWMutex
	defaultLevel = LevelWarnings
	filter       string
	streams      = map[string]*streamState{}
)

func newStreamState(component string, l Level) *streamState {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(toLogrus(l))
	return &streamState{logger: logger, entry: logger.WithField("component", component)}
}

// SetLevel sets the verbosity of every stream, matching -d[=N]. It resets
// any per-stream override.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLevel = l
	for _, s := range streams {
		s.logger.SetLevel(toLogrus(l))
	}
}

// SetStreamLevel overrides the verbosity of one stream, leaving the rest at
// their current levels.
func SetStreamLevel(component string, l Level) {
	mu.Lock()
	defer mu.Unlock()
	s, ok := streams[component]
	if !ok {
		s = newStreamState(component, defaultLevel)
		streams[component] = s
	}
	s.logger.SetLevel(toLogrus(l))
}

// SetFilter restricts logging to components whose name contains substr.
// An empty substr disables filtering.
func SetFilter(substr string) {
	mu.Lock()
	defer mu.Unlock()
	filter = substr
}

func stream(component string) *logrus.Entry {
	mu.RLock()
	s, ok := streams[component]
	mu.RUnlock()
	if ok {
		return s.entry
	}
	mu.Lock()
	defer mu.Unlock()
	if s, ok = streams[component]; ok {
		return s.entry
	}
	s = newStreamState(component, defaultLevel)
	streams[component] = s
	return s.entry
}

func passesFilter(component string) bool {
	mu.RLock()
	f := filter
	mu.RUnlock()
	return f == "" || strings.Contains(component, f)
}

// Debugf logs at the most verbose level.
func Debugf(component, format string, args ...interface{}) {
	if !passesFilter(component) {
		return
	}
	stream(component).Debug(fmt.Sprintf(format, args...))
}

// Infof logs routine progress.
func Infof(component, format string, args ...interface{}) {
	if !passesFilter(component) {
		return
	}
	stream(component).Info(fmt.Sprintf(format, args...))
}

// Warnf logs a recoverable problem.
func Warnf(component, format string, args ...interface{}) {
	if !passesFilter(component) {
		return
	}
	stream(component).Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a failed operation. Errors are never swallowed silently
// elsewhere in the tree; this is the single place they are recorded when a
// caller has chosen to continue past one (e.g. nothrow flush, teardown).
func Errorf(component, format string, args ...interface{}) {
	if !passesFilter(component) {
		return
	}
	stream(component).Error(fmt.Sprintf(format, args...))
}

// CurrentLevel reports the default verbosity new streams start at.
func CurrentLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLevel
}
