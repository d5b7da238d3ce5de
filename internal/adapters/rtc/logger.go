package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// ZerologFactory hands pion a logger per scope that writes through zerolog.
type ZerologFactory struct {
	Logger zerolog.Logger
	// Level caps pion's own verbosity; pion is chatty at debug.
	Level zerolog.Level
}

func NewZerologFactory(base zerolog.Logger, level zerolog.Level) *ZerologFactory {
	return &ZerologFactory{Logger: base, Level: level}
}

func (f *ZerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLogger{
		log: f.Logger.Level(f.Level).With().Str("module", "pion").Str("scope", scope).Logger(),
	}
}

type zerologLogger struct {
	log zerolog.Logger
}

func (l *zerologLogger) Trace(msg string) { l.log.Trace().Msg(msg) }
func (l *zerologLogger) Tracef(format string, args ...any) {
	l.log.Trace().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Debug(msg string) { l.log.Debug().Msg(msg) }
func (l *zerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Info(msg string) { l.log.Info().Msg(msg) }
func (l *zerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Warn(msg string) { l.log.Warn().Msg(msg) }
func (l *zerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Error(msg string) { l.log.Error().Msg(msg) }
func (l *zerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}
