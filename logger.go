package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logFile *os.File

// SetupLogger wires logrus the way the rest of the module expects it
// wired: a JSON formatter (so a log aggregator downstream of this
// process never has to scrape free text) writing to logPath, falling
// back to stderr if the file can't be opened.
func SetupLogger(logPath string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logrus.WithError(err).Warn("logger: falling back to stderr")
		return
	}
	logFile = f
	logrus.SetOutput(logFile)
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
	}
}
