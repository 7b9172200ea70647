package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/logging"
	"github.com/mossy-p/p2p-signaling/internal/models"
	"github.com/mossy-p/p2p-signaling/internal/peerlink"
	"github.com/mossy-p/p2p-signaling/internal/session"
	"github.com/mossy-p/p2p-signaling/internal/signaling"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const intentTimeout = 15 * time.Second

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagLogin    string
)

var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Chat with another peer over a WebRTC data channel",
	Long: `peer logs in to a signaling relay under a unique name, negotiates a
WebRTC data channel with another logged-in peer and exchanges chat lines
over it. Type /help at the prompt for the available commands.

Examples:
  peer --login alice
  peer --server wss://relay.example.com/ws --turn turn:turn.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadPeer(config.PeerOptions{
			SignalingURL: flagServer,
			STUNServer:   flagSTUN,
			TURNServer:   flagTURN,
			TURNUser:     flagTURNUser,
			TURNPass:     flagTURNPass,
		})
		return run(cmd.Context(), cfg, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagServer, "server", "s", "", "signaling relay websocket URL")
	rootCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	rootCmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server host, e.g. turn:turn.example.com")
	rootCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	rootCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	rootCmd.Flags().StringVarP(&flagLogin, "login", "l", "", "log in under this name on start")
}

// relaySignaler forwards controller messages to the relay connection once
// it is dialed.
type relaySignaler struct {
	client *signaling.Client
}

func (s *relaySignaler) Send(msg *models.Message) error {
	return s.client.Send(msg)
}

func run(parent context.Context, cfg *config.PeerConfig, in io.Reader, out io.Writer) error {
	logger, err := logging.New("development", cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := &terminal{out: out}
	signaler := &relaySignaler{}
	controller := session.New(signaler, peerlink.NewFactory(cfg.ICEServers(), logger), term, logger)

	closed := make(chan struct{})
	client, err := signaling.Dial(ctx, cfg.SignalingURL, signaling.Handlers{
		OnMessage: controller.HandleMessage,
		OnClose: func() {
			controller.SignalingLost()
			close(closed)
		},
	}, logger)
	if err != nil {
		return err
	}
	signaler.client = client

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		controller.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	logger.Info("connected to relay", zap.String("url", cfg.SignalingURL))
	term.info("connected to %s, type /help for commands", cfg.SignalingURL)

	r := &repl{session: controller, term: term}
	if flagLogin != "" {
		if err := r.execute(ctx, "/login "+flagLogin); err != nil {
			term.fail(err)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return shutdown(controller, client, closed)
		case <-closed:
			return errors.New("lost connection to the relay")
		case line, ok := <-lines:
			if !ok {
				return shutdown(controller, client, closed)
			}
			intentCtx, cancel := context.WithTimeout(ctx, intentTimeout)
			err := r.execute(intentCtx, line)
			cancel()
			if errors.Is(err, errQuit) {
				return shutdown(controller, client, closed)
			}
			if err != nil {
				term.fail(err)
			}
		}
	}
}

// shutdown logs out, then closes the relay connection and waits briefly for
// queued frames to drain.
func shutdown(controller *session.Controller, client *signaling.Client, closed <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	controller.Logout(ctx)
	client.Close()

	select {
	case <-closed:
	case <-ctx.Done():
	}
	return nil
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("✘ "+err.Error()))
		os.Exit(1)
	}
}
