package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingFuncs struct {
	lines []string
}

func (r *recordingFuncs) record(level string) LogFunc {
	return func(format string, args ...interface{}) {
		r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
	}
}

func TestPrefixLogger(t *testing.T) {
	rec := &recordingFuncs{}
	base := NewLogger("", LogFuncs{
		Debugf: rec.record("D"),
		Infof:  rec.record("I"),
		Warnf:  rec.record("W"),
		Errorf: rec.record("E"),
	})

	child := WithPrefix(base, "app: /foo , ")
	child.Infof("deployed %s", "foo.war")
	child.Warnf("reload failed")
	child.LogLevelf(LogLevelError, "boom %d", 1)
	child.Debugf("checking")

	assert.Equal(t, []string{
		"I app: /foo , deployed foo.war",
		"W app: /foo , reload failed",
		"E app: /foo , boom 1",
		"D app: /foo , checking",
	}, rec.lines)
}

func TestPrefixLogger_MissingFuncsAreIgnored(t *testing.T) {
	l := NewLogger("x ", LogFuncs{})
	assert.NotPanics(t, func() {
		l.Infof("nothing")
		l.Errorf("nothing")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zap.AtomicLevel
		wantErr bool
	}{
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel), false},
		{"INFO", zap.NewAtomicLevelAt(zap.InfoLevel), false},
		{"", zap.NewAtomicLevelAt(zap.InfoLevel), false},
		{"warn", zap.NewAtomicLevelAt(zap.WarnLevel), false},
		{"error", zap.NewAtomicLevelAt(zap.ErrorLevel), false},
		{"verbose", zap.NewAtomicLevelAt(zap.InfoLevel), true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Level(), got)
		})
	}
}

func TestZapLogger_SetLevel(t *testing.T) {
	l, err := NewZapLogger("info")
	require.NoError(t, err)

	require.NoError(t, l.SetLevel("debug"))
	assert.Error(t, l.SetLevel("loud"))

	l.Debugf("debug %s", "line")
	l.LogLevelf(LogLevelWarn, "warn line")
}
