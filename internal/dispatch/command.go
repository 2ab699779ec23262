// SPDX-License-Identifier: MIT
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"tonecast/internal/message"
)

// Command runs an external actuator per message, such as a text-to-speech
// engine or a haptic driver. Arguments may contain {text}, {answer} and
// {color}.
type Command struct {
	name string
	argv []string
}

// NewCommand creates a command sink called name.
func NewCommand(name string, argv []string) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("command sink needs a program")
	}
	return &Command{name: name, argv: append([]string(nil), argv...)}, nil
}

// Name implements Sink.
func (c *Command) Name() string { return c.name }

// Deliver runs the command and waits for it to exit.
func (c *Command) Deliver(ctx context.Context, msg message.Message) error {
	args := ExpandArgs(c.argv, msg)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, s)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// ExpandArgs substitutes the message placeholders in argv.
func ExpandArgs(argv []string, msg message.Message) []string {
	r := strings.NewReplacer(
		"{text}", msg.Text,
		"{answer}", msg.Classification.Answer.String(),
		"{color}", msg.Classification.Color,
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}
