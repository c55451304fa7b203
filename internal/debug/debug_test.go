package debug

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	defer SetLevel(LevelWarnings)

	SetLevel(LevelEverything)
	assert.Equal(t, LevelEverything, CurrentLevel())
	assert.Equal(t, logrus.DebugLevel, stream("level-test").Logger.GetLevel())

	SetLevel(LevelNone)
	assert.Equal(t, LevelNone, CurrentLevel())
	assert.Equal(t, logrus.PanicLevel, stream("level-test").Logger.GetLevel())
}

func TestPerStreamLevel(t *testing.T) {
	defer SetLevel(LevelWarnings)
	SetLevel(LevelWarnings)

	SetStreamLevel("noisy-component", LevelEverything)
	assert.Equal(t, logrus.DebugLevel, stream("noisy-component").Logger.GetLevel())
	// Other streams keep the default level.
	assert.Equal(t, logrus.WarnLevel, stream("quiet-component").Logger.GetLevel())

	// A global SetLevel resets the override.
	SetLevel(LevelErrors)
	assert.Equal(t, logrus.ErrorLevel, stream("noisy-component").Logger.GetLevel())
}

func TestFilter(t *testing.T) {
	defer SetFilter("")

	SetFilter("pagecache")
	assert.True(t, passesFilter("filedata.pagecache"))
	assert.False(t, passesFilter("backend"))

	SetFilter("")
	assert.True(t, passesFilter("anything"))
}

func TestStreamsAreCached(t *testing.T) {
	a := stream("component-x")
	b := stream("component-x")
	assert.Same(t, a, b)
	assert.NotSame(t, a, stream("component-y"))
}
