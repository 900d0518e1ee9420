package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSubsys(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Subsys("scanner").Info("hello")
	assert.Contains(t, buf.String(), "subsys=scanner")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestSetVerbose(t *testing.T) {
	defer SetVerbose(false)

	SetVerbose(true)
	assert.Equal(t, logrus.DebugLevel, DefaultLogger.GetLevel())
	SetVerbose(false)
	assert.Equal(t, DefaultLogLevel, DefaultLogger.GetLevel())
}

func TestGetFormatter(t *testing.T) {
	assert.IsType(t, &logrus.JSONFormatter{}, GetFormatter(LogFormatJSON))
	assert.IsType(t, &logrus.TextFormatter{}, GetFormatter("bogus"))
}
