// Package logging adapts loggo loggers to es.Logger.
package logging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/pupstream/es"
)

// Logger writes es.Logger calls to a loggo logger as "msg key=value ..."
// lines. The trace id of the span in ctx, if any, is appended.
type Logger struct {
	logger loggo.Logger
}

var _ es.Logger = Logger{}

// New returns a Logger for the loggo module name, for example
// "pupstream.dispatch".
func New(name string) Logger {
	return Logger{logger: loggo.GetLogger(name)}
}

// Wrap returns a Logger writing to logger.
func Wrap(logger loggo.Logger) Logger {
	return Logger{logger: logger}
}

// Debug implements es.Logger.
func (l Logger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	if !l.logger.IsDebugEnabled() {
		return
	}
	l.logger.Debugf("%s", format(ctx, msg, keyvals))
}

// Info implements es.Logger.
func (l Logger) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.Infof("%s", format(ctx, msg, keyvals))
}

// Error implements es.Logger.
func (l Logger) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.Errorf("%s", format(ctx, msg, keyvals))
}

func format(ctx context.Context, msg string, keyvals []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(keyvals); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(keyvals[i]))
		b.WriteByte('=')
		if i+1 < len(keyvals) {
			b.WriteString(value(keyvals[i+1]))
		} else {
			b.WriteString("<missing>")
		}
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			b.WriteString(" trace_id=")
			b.WriteString(sc.TraceID().String())
		}
	}
	return b.String()
}

func value(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// Configure applies a loggo configuration string such as
// "<root>=INFO;pupstream.dispatch=DEBUG" to the default logging context.
func Configure(config string) error {
	if config == "" {
		return nil
	}
	return errors.Annotatef(loggo.ConfigureLoggers(config), "configuring loggers %q", config)
}
