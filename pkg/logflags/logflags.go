// Package logflags turns the --log and --log-output command line switches
// into per-component loggers.
package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var proc = false
var search = false
var pathexpr = false
var terminal = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Proc returns true if the memory access layer should log.
func Proc() bool {
	return proc
}

// ProcLogger returns a logger for the memory access layer.
func ProcLogger() *logrus.Entry {
	return makeLogger(proc, logrus.Fields{"layer": "proc"})
}

// Search returns true if the scan engine and search sessions should log.
func Search() bool {
	return search
}

// SearchLogger returns a logger for the scan engine and search sessions.
func SearchLogger() *logrus.Entry {
	return makeLogger(search, logrus.Fields{"layer": "search"})
}

// PathExpr returns true if pointer-path execution should log each step.
func PathExpr() bool {
	return pathexpr
}

// PathExprLogger returns a logger for the pointer-path executor.
func PathExprLogger() *logrus.Entry {
	return makeLogger(pathexpr, logrus.Fields{"layer": "pathexpr"})
}

// Terminal returns true if the interactive terminal should log.
func Terminal() bool {
	return terminal
}

// TerminalLogger returns a logger for the interactive terminal.
func TerminalLogger() *logrus.Entry {
	return makeLogger(terminal, logrus.Fields{"layer": "terminal"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "search"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "proc":
			proc = true
		case "search":
			search = true
		case "pathexpr":
			pathexpr = true
		case "terminal":
			terminal = true
		}
	}
	return nil
}
