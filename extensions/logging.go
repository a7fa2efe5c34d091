// Package extensions provides engine extensions for logging and dependency
// graph debugging.
package extensions

import (
	"context"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	axis "github.com/axis-lang/axis-go"
	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// LoggingExtension logs every engine operation through a structured
// logger. The handler fans out to the terminal and, when the process runs
// as a systemd service, to the journal.
type LoggingExtension struct {
	axis.BaseExtension
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewLoggingExtension creates a logging extension writing at the given
// level. Pass a nil handler to use the default fan-out.
func NewLoggingExtension(handler slog.Handler, level slog.Level) *LoggingExtension {
	lv := new(slog.LevelVar)
	lv.Set(level)
	if handler == nil {
		handler = fanoutHandler(lv)
	}
	return &LoggingExtension{
		BaseExtension: axis.NewBaseExtension("logging"),
		logger:        slog.New(handler),
		level:         lv,
	}
}

// SetLevel adjusts the minimum level of the default handler.
func (e *LoggingExtension) SetLevel(level slog.Level) {
	e.level.Set(level)
}

// Logger returns the extension's logger for use elsewhere in the host
// program.
func (e *LoggingExtension) Logger() *slog.Logger {
	return e.logger
}

func (e *LoggingExtension) Wrap(next func() axis.Value, op *axis.Operation) axis.Value {
	start := time.Now()
	v := next()
	e.logger.Debug("operation",
		"kind", string(op.Kind),
		"object", int32(op.Ref.Obj),
		"slot", op.Ref.Key,
		"duration", time.Since(start),
	)
	return v
}

func (e *LoggingExtension) OnFault(err error, _ *axis.Engine) {
	e.logger.Warn("fault recorded", "error", err)
}

func (e *LoggingExtension) OnWave(wave uint64, batch []axis.SlotRef) {
	e.logger.Debug("wave", "wave", wave, "batch", len(batch))
}

// fanoutHandler builds the default handler set: a text handler on stderr
// unless the process is a systemd service, plus the systemd journal when
// it is reachable.
func fanoutHandler(level slog.Leveler) slog.Handler {
	var handlers []slog.Handler

	isSystemdService := false
	if cgroupPath, err := getCgroupPath(); err == nil {
		isSystemdService = strings.HasSuffix(path.Dir(cgroupPath), ".service")
	}

	var terminalHandler slog.Handler
	if !isSystemdService {
		terminalHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
		handlers = append(handlers, terminalHandler)
	}

	journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
		ReplaceGroup: toJournalKey,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = toJournalKey(a.Key)
			return a
		},
	})
	if err != nil {
		if terminalHandler != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
			record.Add("error", err)
			_ = terminalHandler.Handle(context.Background(), record)
		}
	} else {
		handlers = append(handlers, journalHandler)
	}

	return slogmulti.Fanout(handlers...)
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func getCgroupPath() (string, error) {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	parts := strings.Split(string(content), ":")
	if len(parts) >= 3 {
		return parts[2], nil
	}
	return "", nil
}
