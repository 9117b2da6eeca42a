package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
	log.SetOutput(os.Stdout)
}

func Get() *logrus.Logger {
	return log
}

// WithModule: paket bazlı alan ekler, handler'larda kullanılır
func WithModule(module string) *logrus.Entry {
	return log.WithField("module", module)
}

func Error(module, funcName string, err error, fields logrus.Fields) {
	entry := log.WithFields(logrus.Fields{
		"module":   module,
		"funcName": funcName,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Error(err.Error())
}
