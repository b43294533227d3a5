package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const (
	spinnerFrameWidth = 2 // braille frames render about two columns wide
	spinnerAnimDelay  = 80 * time.Millisecond
	spinnerClearPad   = 5
)

// simpleSpinner animates on a terminal while a slow call runs. Off a
// terminal it prints the message once.
type simpleSpinner struct {
	frames   []string
	message  string
	w        io.Writer
	clearLen int

	done    atomic.Bool
	stopped sync.WaitGroup
}

func newSimpleSpinner(w io.Writer, message string) *simpleSpinner {
	return &simpleSpinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message:  message,
		w:        w,
		clearLen: spinnerFrameWidth + 1 + len(message),
	}
}

func (s *simpleSpinner) Start() {
	if !isTTY() {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}

	s.stopped.Add(1)
	go func() {
		defer s.stopped.Done()
		style := lipgloss.NewStyle().Foreground(colorPrimary)
		for i := 0; !s.done.Load(); i++ {
			fmt.Fprintf(s.w, "\r%s %s", style.Render(s.frames[i%len(s.frames)]), s.message)
			time.Sleep(spinnerAnimDelay)
		}
	}()
}

func (s *simpleSpinner) Stop() {
	s.done.Store(true)
	s.stopped.Wait()
	if isTTY() {
		fmt.Fprint(s.w, "\r"+strings.Repeat(" ", s.clearLen+spinnerClearPad)+"\r")
	}
}

// runMaybeWithSpinner runs operation, showing a spinner on stderr when
// enabled and output is not JSON.
func runMaybeWithSpinner(cmd *cobra.Command, enabled bool, message string, operation func() error) error {
	if !enabled || outputJSON {
		return operation()
	}
	spin := newSimpleSpinner(cmd.ErrOrStderr(), message)
	spin.Start()
	err := operation()
	spin.Stop()
	return err
}
