package logger

// PrefixLogger tags every message with a component name.
type PrefixLogger struct {
	Logger
	prefix string
}

// Named returns a logger that writes "name: msg" to l. Close closes l.
func Named(l Logger, name string) *PrefixLogger {
	return &PrefixLogger{Logger: l, prefix: name + ": "}
}

func (p *PrefixLogger) Debug(format string, args ...interface{}) {
	p.Logger.Debug(p.prefix+format, args...)
}

func (p *PrefixLogger) Info(format string, args ...interface{}) {
	p.Logger.Info(p.prefix+format, args...)
}

func (p *PrefixLogger) Warning(format string, args ...interface{}) {
	p.Logger.Warning(p.prefix+format, args...)
}

func (p *PrefixLogger) Error(format string, args ...interface{}) {
	p.Logger.Error(p.prefix+format, args...)
}

var _ Logger = (*PrefixLogger)(nil)
