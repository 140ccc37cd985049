// Package confirm gates destructive actions behind an explicit yes/no
// question. Declining aborts the action before it has any side effect.
package confirm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	appLog "societycal/internal/log"
)

var (
	// ErrDeclined is returned when the user answers anything but yes.
	ErrDeclined = errors.New("action declined")
	// ErrNotInteractive is returned when a prompt is needed but stdin is
	// not a terminal. Pass --yes to run unattended.
	ErrNotInteractive = errors.New("confirmation needed but stdin is not a terminal (use --yes)")
)

// Action names a gated operation.
type Action string

const (
	ActionRegister      Action = "register"
	ActionJoinSociety   Action = "join-society"
	ActionCreateEvent   Action = "create-event"
	ActionCreateSociety Action = "create-society"
	ActionPublishNews   Action = "publish-news"
	ActionCancel        Action = "cancel"
)

var questions = map[Action]string{
	ActionRegister:      "Are you sure you want to register for this event?",
	ActionJoinSociety:   "Are you sure you want to join this society?",
	ActionCreateEvent:   "Are you sure you want to create this event?",
	ActionCreateSociety: "Are you sure you want to create this society?",
	ActionPublishNews:   "Are you sure you want to publish/save these news items?",
	ActionCancel:        "Are you sure you want to cancel?",
}

// Question is the prompt shown for a.
func (a Action) Question() string {
	if q, ok := questions[a]; ok {
		return q
	}
	return fmt.Sprintf("Are you sure you want to %s?", strings.ReplaceAll(string(a), "-", " "))
}

// Prompter asks a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// LinePrompter reads one answer line per question. "y" and "yes" (any case)
// accept; anything else, including EOF, declines.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// TerminalPrompter is a LinePrompter that refuses to guess when its input
// is not a terminal.
type TerminalPrompter struct {
	fd   int
	line *LinePrompter
}

func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{fd: int(in.Fd()), line: NewLinePrompter(in, out)}
}

func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	if !term.IsTerminal(p.fd) {
		return false, ErrNotInteractive
	}
	return p.line.Confirm(question)
}

// AutoApprove answers yes without asking.
type AutoApprove struct{}

func (AutoApprove) Confirm(string) (bool, error) { return true, nil }

// Guard runs actions only after the prompter approves them.
type Guard struct {
	p Prompter
}

func NewGuard(p Prompter) *Guard {
	if p == nil {
		p = NewTerminalPrompter(os.Stdin, os.Stderr)
	}
	return &Guard{p: p}
}

// Run asks the action's question and calls fn only on a yes.
func (g *Guard) Run(ctx context.Context, a Action, fn func(context.Context) error) error {
	ok, err := g.p.Confirm(a.Question())
	if err != nil {
		return err
	}
	if !ok {
		appLog.Info("action declined", "action", string(a))
		return ErrDeclined
	}
	return fn(ctx)
}
