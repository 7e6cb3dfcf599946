package keys

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// LineSource turns lines read from a reader (usually stdin) into key events.
// An empty line emits the default code; other lines are parsed as key names.
type LineSource struct {
	Bus
	r       io.Reader
	def     Code
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

func NewLineSource(r io.Reader, def Code, logger *slog.Logger) *LineSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineSource{r: r, def: def, logger: logger, now: time.Now}
}

func (s *LineSource) Name() string { return "line" }

// Alive reports whether Run is still reading.
func (s *LineSource) Alive() bool { return s.running.Load() }

// Run reads until EOF or ctx is done. A reader blocked in Read is abandoned
// on cancellation.
func (s *LineSource) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				s.logger.Warn("line key source stopped", "error", err)
			}
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "#") {
				continue
			}
			code := s.def
			if line != "" {
				c, err := ParseKey(line)
				if err != nil {
					s.logger.Warn("ignoring input line", "line", line, "error", err)
					continue
				}
				code = c
			}
			s.Dispatch(Event{Code: code, At: s.now()})
		}
	}
}
