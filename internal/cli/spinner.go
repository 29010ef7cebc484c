package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/bundlewire/pkg/pipeline"
)

// spinnerOut receives spinner frames. Tests swap it for a buffer.
var spinnerOut io.Writer = os.Stderr

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

const spinnerTick = 80 * time.Millisecond

// spinner keeps one status line alive while a long step runs: opening a
// remote cache or a pipeline run. The line shows the label, the current
// pipeline stage if any and the elapsed time.
type spinner struct {
	ctx   context.Context
	w     io.Writer
	start time.Time

	mu    sync.Mutex
	label string
	stage pipeline.Stage
	drawn int

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// startSpinner draws label until stop is called or ctx ends.
func startSpinner(ctx context.Context, label string) *spinner {
	s := &spinner{
		ctx:   ctx,
		w:     spinnerOut,
		start: time.Now(),
		label: label,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *spinner) loop() {
	defer close(s.done)
	t := time.NewTicker(spinnerTick)
	defer t.Stop()
	for frame := 0; ; frame++ {
		select {
		case <-s.quit:
			return
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.draw(spinnerFrames[frame%len(spinnerFrames)])
		}
	}
}

func (s *spinner) draw(frame rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.label
	if s.stage != "" {
		text += " · " + string(s.stage)
	}
	text += fmt.Sprintf(" %.1fs", time.Since(s.start).Seconds())

	line := styleIconSpinner.Render(string(frame)) + " " + StyleDim.Render(text)
	width := len([]rune(text)) + 2
	pad := ""
	if s.drawn > width {
		pad = strings.Repeat(" ", s.drawn-width)
	}
	fmt.Fprintf(s.w, "\r%s%s", line, pad)
	s.drawn = width
}

// setLabel replaces the text next to the frame.
func (s *spinner) setLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// onStage is a pipeline.Options.OnStage callback.
func (s *spinner) onStage(stage pipeline.Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// stop ends the animation and blanks the line. It is safe to call twice.
func (s *spinner) stop() {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
		s.mu.Lock()
		if s.drawn > 0 {
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.drawn))
			s.drawn = 0
		}
		s.mu.Unlock()
	})
}

// fail stops the spinner and prints msg as an error.
func (s *spinner) fail(msg string) {
	s.stop()
	printError("%s", msg)
}

// cancelled reports whether the spinner ended because its context did.
func (s *spinner) cancelled() bool {
	return s.ctx.Err() != nil
}
