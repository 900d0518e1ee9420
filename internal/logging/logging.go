package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/donutnomad/derivegen/internal/logging/logfields"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"

	DefaultLogLevel = logrus.InfoLevel
)

// DefaultLogger 全局 logger，与 logrus 的标准 logger 相互独立
var DefaultLogger = initializeDefaultLogger()

func initializeDefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(GetFormatter(LogFormatText))
	logger.SetLevel(DefaultLogLevel)
	return logger
}

// GetFormatter 根据格式返回 logrus.Formatter，未知格式按 text 处理
func GetFormatter(format LogFormat) logrus.Formatter {
	switch format {
	case LogFormatJSON:
		return &logrus.JSONFormatter{DisableTimestamp: true}
	default:
		return &logrus.TextFormatter{
			DisableTimestamp: true,
			DisableQuote:     true,
		}
	}
}

// Subsys 返回带子系统字段的 logger
//
//	var log = logging.Subsys("scanner")
func Subsys(name string) *logrus.Entry {
	return DefaultLogger.WithField(logfields.LogSubsys, name)
}

// SetVerbose -v 打开 debug 级别
func SetVerbose(verbose bool) {
	if verbose {
		DefaultLogger.SetLevel(logrus.DebugLevel)
	} else {
		DefaultLogger.SetLevel(DefaultLogLevel)
	}
}

func SetLogFormat(format LogFormat) {
	DefaultLogger.SetFormatter(GetFormatter(format))
}

func SetOutput(w io.Writer) {
	DefaultLogger.SetOutput(w)
}
