// Package interactive provides the confirmation gate shown before hoist
// reloads or relaunches the client.
package interactive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// Request describes what the user is asked to confirm.
type Request struct {
	Title   string
	Message string
	Details []string
}

// Gate asks the user to confirm a disruptive action. Confirm resolves true
// on confirm and false on decline, EOF or cancellation.
type Gate interface {
	Confirm(ctx context.Context, req Request) bool
	Visible() bool
}

// Prompter is a Gate that asks on a terminal.
type Prompter struct {
	out io.Writer

	mu      sync.Mutex // one prompt at a time
	visible atomic.Bool

	startOnce sync.Once
	in        io.Reader
	lines     chan string
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:    in,
		out:   out,
		lines: make(chan string),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readLines pumps input lines so a cancelled prompt never leaves a second
// reader racing on the same scanner.
func (p *Prompter) readLines() {
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.lines)
}

// Visible reports whether a prompt is currently waiting for an answer.
func (p *Prompter) Visible() bool {
	return p.visible.Load()
}

// Confirm shows req and waits for y/n.
func (p *Prompter) Confirm(ctx context.Context, req Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startOnce.Do(func() { go p.readLines() })

	p.visible.Store(true)
	defer p.visible.Store(false)

	if req.Title != "" {
		_, _ = fmt.Fprintf(p.out, "\n%s\n", req.Title)
	}
	if req.Message != "" {
		_, _ = fmt.Fprintln(p.out, req.Message)
	}
	for _, d := range req.Details {
		_, _ = fmt.Fprintf(p.out, "  %s\n", d)
	}
	_, _ = fmt.Fprint(p.out, "Proceed? [y/n] ")

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(p.out)
		return false
	case line, ok := <-p.lines:
		if !ok {
			return false
		}
		return parseAnswer(p.out, line)
	}
}

func parseAnswer(out io.Writer, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no", "":
		return false
	default:
		// Default to no for invalid input
		_, _ = fmt.Fprintln(out, "Invalid response, skipping.")
		return false
	}
}

// AutoGate answers every request without asking. It is used when stdin is
// not a terminal.
type AutoGate struct {
	Answer bool
	Out    io.Writer // optional; receives a one-line notice per request
}

func (g AutoGate) Confirm(ctx context.Context, req Request) bool {
	if g.Out != nil {
		verdict := "declined"
		if g.Answer {
			verdict = "accepted"
		}
		_, _ = fmt.Fprintf(g.Out, "%s (auto-%s)\n", req.Title, verdict)
	}
	return g.Answer
}

func (AutoGate) Visible() bool { return false }
