package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperengineering/dialectic"
	"github.com/spf13/cobra"
)

// eventFlags holds the flags that describe a development event.
type eventFlags struct {
	files     []string
	message   string
	errors    []string
	eventPath string
}

func (f *eventFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.files, "file", "f", nil, "Changed file path (repeatable)")
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "Commit message or change description")
	cmd.Flags().StringArrayVarP(&f.errors, "error", "e", nil, "Error seen, as kind or kind:count (repeatable)")
	cmd.Flags().StringVar(&f.eventPath, "event", "", "Read the event as JSON from a file, or - for stdin")
}

func (f *eventFlags) reset() {
	f.files = nil
	f.message = ""
	f.errors = nil
	f.eventPath = ""
}

// event builds the event from --event JSON, then appends files and errors
// given as flags. A --message flag replaces the JSON message.
func (f *eventFlags) event(stdin io.Reader) (dialectic.Event, error) {
	var ev dialectic.Event

	if f.eventPath != "" {
		r := stdin
		if f.eventPath != "-" {
			file, err := os.Open(f.eventPath)
			if err != nil {
				return ev, fmt.Errorf("open event: %w", err)
			}
			defer file.Close()
			r = file
		}
		if err := json.NewDecoder(r).Decode(&ev); err != nil {
			return ev, fmt.Errorf("decode event: %w", err)
		}
	}

	ev.Files = append(ev.Files, f.files...)
	if f.message != "" {
		ev.Message = f.message
	}
	for _, s := range f.errors {
		rec, err := dialectic.ParseErrorRecord(s)
		if err != nil {
			return ev, err
		}
		ev.Errors = append(ev.Errors, rec)
	}
	return ev, nil
}
