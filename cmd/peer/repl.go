package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mossy-p/p2p-signaling/internal/chat"
	"github.com/mossy-p/p2p-signaling/internal/session"
)

var errQuit = errors.New("quit")

// peerSession is the part of the controller the prompt drives.
type peerSession interface {
	Login(ctx context.Context, name string) error
	Connect(ctx context.Context, peer string) error
	Send(ctx context.Context, data []byte) error
	Disconnect(ctx context.Context) error
	Logout(ctx context.Context) error
	Status() session.Status
}

type repl struct {
	session peerSession
	term    *terminal
}

const helpText = `commands:
  /login <name>     register with the relay
  /connect <name>   open a data channel to a logged-in peer
  /disconnect       hang up on the current peer
  /logout           leave the relay
  /status           show the session state
  /quit             log out and exit
anything else is sent to the connected peer`

// execute runs one input line. It returns errQuit for /quit.
func (r *repl) execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.say(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/login":
		if arg == "" {
			return fmt.Errorf("usage: /login <name>")
		}
		return r.session.Login(ctx, arg)
	case "/connect":
		if arg == "" {
			return fmt.Errorf("usage: /connect <name>")
		}
		return r.session.Connect(ctx, arg)
	case "/disconnect":
		return r.session.Disconnect(ctx)
	case "/logout":
		return r.session.Logout(ctx)
	case "/status":
		r.term.status(r.session.Status())
		return nil
	case "/help":
		r.term.info("%s", helpText)
		return nil
	case "/quit":
		return errQuit
	}
	return fmt.Errorf("unknown command %s, try /help", command)
}

func (r *repl) say(ctx context.Context, text string) error {
	status := r.session.Status()
	if status.State != session.Connected {
		return session.ErrNotConnected
	}
	data, err := chat.New(status.Login, text).Encode()
	if err != nil {
		return err
	}
	return r.session.Send(ctx, data)
}
