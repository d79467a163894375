// Package logging provides the structured logger seam shared by the server
// and client transports, grounded on the teacher's utils/logger.LogService
// contract but backed by go.uber.org/zap, the way the pack's other
// Streamable HTTP transports (teradata-labs-loom, gate4ai) log transport
// events.
package logging

import "go.uber.org/zap"

//Fields is a set of structured key/value pairs attached to one log line.
type Fields map[string]interface{}

//Logger is the logging seam both transports are constructed with. The
//transport never depends on zap directly; it depends on this interface, so
//an embedder can swap in any backend.
type Logger interface {
	Info(msg string, fields Fields)
	Error(msg string, fields Fields)
	Warn(msg string, fields Fields)
}

//NewZap builds a Logger backed by a zap.SugaredLogger.
func NewZap(z *zap.SugaredLogger) Logger {
	return &zapLogger{z: z}
}

//NewNop returns a Logger that discards everything, the default for
//constructors that receive no explicit logger.
func NewNop() Logger {
	return NewZap(zap.NewNop().Sugar())
}

type zapLogger struct {
	z *zap.SugaredLogger
}

func (l *zapLogger) Info(msg string, fields Fields) {
	l.z.Infow(msg, fieldsToArgs(fields)...)
}

func (l *zapLogger) Error(msg string, fields Fields) {
	l.z.Errorw(msg, fieldsToArgs(fields)...)
}

func (l *zapLogger) Warn(msg string, fields Fields) {
	l.z.Warnw(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields Fields) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
