package interactive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func confirm(input string) (bool, string) {
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader(input), output)
	got := p.Confirm(context.Background(), Request{
		Title:   "Update ready",
		Message: "Reload now?",
		Details: []string{"0.9.0 -> 1.0.0 (major)"},
	})
	return got, output.String()
}

func TestPrompterYesResponse(t *testing.T) {
	for _, input := range []string{"y\n", "yes\n", " Y \n"} {
		if got, _ := confirm(input); !got {
			t.Errorf("Confirm(%q) = false, want true", input)
		}
	}
}

func TestPrompterNoResponse(t *testing.T) {
	for _, input := range []string{"n\n", "no\n", "\n"} {
		if got, _ := confirm(input); got {
			t.Errorf("Confirm(%q) = true, want false", input)
		}
	}
}

func TestPrompterInvalidResponse(t *testing.T) {
	got, out := confirm("maybe\n")
	if got {
		t.Error("expected invalid input to decline")
	}
	if !strings.Contains(out, "Invalid response") {
		t.Errorf("expected invalid response message, got: %s", out)
	}
}

func TestPrompterEOFResponse(t *testing.T) {
	if got, _ := confirm(""); got {
		t.Error("expected EOF to decline")
	}
}

func TestPrompterRendersRequest(t *testing.T) {
	_, out := confirm("y\n")
	for _, want := range []string{"Update ready", "Reload now?", "  0.9.0 -> 1.0.0 (major)", "[y/n]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrompterSequentialPrompts(t *testing.T) {
	p := NewPrompterWithIO(strings.NewReader("n\ny\n"), io.Discard)
	ctx := context.Background()

	if p.Confirm(ctx, Request{Title: "first"}) {
		t.Error("first prompt should decline")
	}
	if !p.Confirm(ctx, Request{Title: "second"}) {
		t.Error("second prompt should confirm")
	}
}

func TestPrompterVisibleWhileWaiting(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewPrompterWithIO(pr, io.Discard)

	if p.Visible() {
		t.Fatal("prompt should not be visible before Confirm")
	}

	done := make(chan bool)
	go func() { done <- p.Confirm(context.Background(), Request{Title: "wait"}) }()

	deadline := time.Now().Add(5 * time.Second)
	for !p.Visible() {
		if time.Now().After(deadline) {
			t.Fatal("prompt never became visible")
		}
		time.Sleep(time.Millisecond)
	}

	_, _ = pw.Write([]byte("y\n"))
	if !<-done {
		t.Error("expected confirm")
	}
	if p.Visible() {
		t.Error("prompt should be hidden after answer")
	}
}

func TestPrompterCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewPrompterWithIO(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if p.Confirm(ctx, Request{Title: "cancelled"}) {
		t.Error("cancelled prompt should decline")
	}
}

func TestAutoGate(t *testing.T) {
	out := &bytes.Buffer{}
	yes := AutoGate{Answer: true, Out: out}
	if !yes.Confirm(context.Background(), Request{Title: "Relaunch"}) {
		t.Error("AutoGate{Answer: true} should confirm")
	}
	if !strings.Contains(out.String(), "Relaunch (auto-accepted)") {
		t.Errorf("unexpected notice: %s", out.String())
	}
	if yes.Visible() {
		t.Error("AutoGate is never visible")
	}

	if (AutoGate{}).Confirm(context.Background(), Request{}) {
		t.Error("zero AutoGate should decline")
	}
}
