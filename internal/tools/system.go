package tools

import (
	"context"
	"fmt"
	"time"
)

// CurrentTimeInput defines input for the current_time tool. It takes no
// parameters; the empty struct still yields a valid object schema.
type CurrentTimeInput struct{}

// NewCurrentTimeTool returns a tool reporting the local date and time. The
// model has no clock of its own, so anything time-sensitive needs this.
func NewCurrentTimeTool() (Tool, error) {
	return New(
		"current_time",
		"Get the current local date, time, and timezone.",
		func(_ context.Context, _ CurrentTimeInput) (string, error) {
			now := time.Now()
			zone, offset := now.Zone()
			return fmt.Sprintf("%s (%s, UTC%+d)",
				now.Format("2006-01-02 15:04:05 Monday"), zone, offset/3600), nil
		},
	)
}

// DefaultTools assembles the standard local toolset.
func DefaultTools(ft *FileTools) ([]Tool, error) {
	tools, err := ft.Tools()
	if err != nil {
		return nil, err
	}

	timeTool, err := NewCurrentTimeTool()
	if err != nil {
		return nil, err
	}
	return append(tools, timeTool), nil
}
