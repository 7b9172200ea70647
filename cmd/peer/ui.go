package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mossy-p/p2p-signaling/internal/chat"
	"github.com/mossy-p/p2p-signaling/internal/session"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	PeerStyle    = lipgloss.NewStyle().Foreground(Primary).Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9FAFB")).
			Background(Primary).
			Padding(0, 1).
			Bold(true)
)

// terminal prints controller notifications. The controller loop and the
// prompt both write through it, one whole line at a time.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) println(a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, a...)
}

var _ session.Observer = (*terminal)(nil)

func (t *terminal) success(format string, args ...any) {
	t.println(SuccessStyle.Render("✔"), fmt.Sprintf(format, args...))
}

func (t *terminal) warn(format string, args ...any) {
	t.println(WarningStyle.Render("! " + fmt.Sprintf(format, args...)))
}

func (t *terminal) fail(err error) {
	t.println(ErrorStyle.Render("✘ " + err.Error()))
}

func (t *terminal) info(format string, args ...any) {
	t.println(MutedStyle.Render(fmt.Sprintf(format, args...)))
}

func (t *terminal) StateChanged(from, to session.State, peer string) {
	switch to {
	case session.Registered:
		switch {
		case from == session.Registering:
			t.success("logged in")
		case from == session.Connected || from == session.Disconnecting:
			t.warn("disconnected from peer")
		case from.Negotiating():
			t.warn("connection attempt abandoned")
		}
	case session.NegotiatingOfferer:
		t.info("calling %s...", peer)
	case session.NegotiatingAnswerer:
		t.info("incoming connection from %s...", peer)
	case session.Connected:
		t.success("connected to %s", PeerStyle.Render(peer))
	case session.Unregistered:
		if from != session.Registering {
			t.info("logged out")
		}
	}
}

func (t *terminal) LoginRefused(login string) {
	t.warn("login %q refused: name in use", login)
}

func (t *terminal) ServerError(message string) {
	t.warn("relay: %s", message)
}

func (t *terminal) NegotiationFailed(err error) {
	t.fail(err)
}

func (t *terminal) Received(peer string, data []byte) {
	envelope, err := chat.Decode(data)
	if err != nil {
		t.println(PeerStyle.Render(peer+":"), string(data))
		return
	}
	t.println(
		MutedStyle.Render(envelope.SentAt.Format(time.Kitchen)),
		PeerStyle.Render(envelope.From+":"),
		envelope.Text)
}

func (t *terminal) status(s session.Status) {
	line := StatusStyle.Render(s.State.String())
	if s.Login != "" {
		line += " as " + s.Login
	}
	if s.Peer != "" {
		line += " with " + PeerStyle.Render(s.Peer)
	}
	t.println(line)
}
