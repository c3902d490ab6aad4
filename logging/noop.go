package logging

// Noop returns a logger that discards everything.
func Noop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(args ...interface{})                          {}
func (noopLogger) Debugw(msg string, keysAndValues ...interface{})    {}
func (noopLogger) Debugf(msg string, args ...interface{})             {}
func (noopLogger) Info(args ...interface{})                           {}
func (noopLogger) Infow(msg string, keysAndValues ...interface{})     {}
func (noopLogger) Infof(msg string, args ...interface{})              {}
func (noopLogger) Warn(args ...interface{})                           {}
func (noopLogger) Warnw(msg string, keysAndValues ...interface{})     {}
func (noopLogger) Warnf(msg string, args ...interface{})              {}
func (noopLogger) Error(args ...interface{})                          {}
func (noopLogger) Errorw(msg string, keysAndValues ...interface{})    {}
func (noopLogger) Errorf(msg string, args ...interface{})             {}
func (n noopLogger) Named(name string) Logger                         { return n }
func (n noopLogger) With(field string, value interface{}) Logger      { return n }
