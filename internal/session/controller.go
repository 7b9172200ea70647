package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/p2p-signaling/internal/models"
	"go.uber.org/zap"
)

var (
	ErrEmptyLogin      = errors.New("login must not be empty")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrNotRegistered   = errors.New("not logged in")
	ErrEmptyPeer       = errors.New("peer login must not be empty")
	ErrSelfConnect     = errors.New("cannot connect to yourself")
	ErrBusy            = errors.New("already paired with a peer")
	ErrNotConnected    = errors.New("not connected to a peer")
	ErrStopped         = errors.New("session controller stopped")
)

// ChannelLabel names the data channel opened by the offering side.
const ChannelLabel = "messages"

const eventBuffer = 64

type eventKind int

const (
	evLogin eventKind = iota
	evConnect
	evSend
	evDisconnect
	evLogout
	evMessage
	evSignalingLost
	evLocalCandidate
	evDataChannel
	evChannelOpen
	evChannelClose
	evChannelMessage
)

type event struct {
	kind eventKind

	// gen fences link events: anything tagged with an older generation
	// comes from a link that was already torn down.
	gen uint64

	name      string
	data      []byte
	msg       *models.Message
	candidate json.RawMessage
	channel   DataChannel

	done chan error
}

// Controller drives one participant from login through negotiation to a
// connected data channel and back. All state transitions happen on the
// goroutine running Run; intents, relay messages and link events are
// queued to it.
type Controller struct {
	signaler Signaler
	newLink  LinkFactory
	observer Observer
	log      *zap.Logger

	events   chan event
	stopped  chan struct{}
	stopOnce sync.Once

	// Owned by the loop.
	state   State
	login   string
	peer    string
	link    PeerLink
	channel DataChannel
	gen     uint64

	// Login replies carry no name, so replies are matched to requests by
	// count. Only the reply to the newest request is applied.
	pendingLogins int

	mu     sync.RWMutex
	status Status
}

// New creates a controller in the Unregistered state. observer and logger
// may be nil.
func New(signaler Signaler, newLink LinkFactory, observer Observer, logger *zap.Logger) *Controller {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		signaler: signaler,
		newLink:  newLink,
		observer: observer,
		log:      logger.With(zap.String("component", "session")),
		events:   make(chan event, eventBuffer),
		stopped:  make(chan struct{}),
	}
}

// Run processes queued events until ctx is done, then releases the link.
func (c *Controller) Run(ctx context.Context) error {
	defer c.stopOnce.Do(func() { close(c.stopped) })

	for {
		select {
		case <-ctx.Done():
			c.closeLink()
			return ctx.Err()
		case ev := <-c.events:
			err := c.handle(ev)
			if ev.done != nil {
				ev.done <- err
			}
		}
	}
}

// Status returns the current state, login and peer.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Login registers name with the relay.
func (c *Controller) Login(ctx context.Context, name string) error {
	return c.submit(ctx, event{kind: evLogin, name: name})
}

// Connect starts negotiating with peer as the offering side.
func (c *Controller) Connect(ctx context.Context, peer string) error {
	return c.submit(ctx, event{kind: evConnect, name: peer})
}

// Send writes data to the connected peer's channel.
func (c *Controller) Send(ctx context.Context, data []byte) error {
	return c.submit(ctx, event{kind: evSend, data: data})
}

// Disconnect ends the current pairing but stays logged in.
func (c *Controller) Disconnect(ctx context.Context) error {
	return c.submit(ctx, event{kind: evDisconnect})
}

// Logout leaves the relay. It is a no-op when not logged in.
func (c *Controller) Logout(ctx context.Context) error {
	return c.submit(ctx, event{kind: evLogout})
}

// HandleMessage queues a message received from the relay.
func (c *Controller) HandleMessage(msg *models.Message) {
	c.post(event{kind: evMessage, msg: msg})
}

// SignalingLost reports that the relay connection is gone.
func (c *Controller) SignalingLost() {
	c.post(event{kind: evSignalingLost})
}

func (c *Controller) submit(ctx context.Context, ev event) error {
	ev.done = make(chan error, 1)
	select {
	case c.events <- ev:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ev.done:
		return err
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

func (c *Controller) handle(ev event) error {
	defer c.publish()

	switch ev.kind {
	case evLogin:
		return c.doLogin(ev.name)
	case evConnect:
		return c.doConnect(ev.name)
	case evSend:
		return c.doSend(ev.data)
	case evDisconnect:
		c.doDisconnect()
	case evLogout:
		c.doLogout()
	case evMessage:
		c.onMessage(ev.msg)
	case evSignalingLost:
		c.onSignalingLost()
	case evLocalCandidate:
		c.onLocalCandidate(ev.gen, ev.candidate)
	case evDataChannel:
		if ev.gen == c.gen {
			c.attachChannel(ev.channel)
		}
	case evChannelOpen:
		c.onChannelOpen(ev.gen)
	case evChannelClose:
		c.onChannelClose(ev.gen)
	case evChannelMessage:
		if ev.gen == c.gen && c.state == Connected {
			c.observer.Received(c.peer, ev.data)
		}
	}
	return nil
}

func (c *Controller) doLogin(name string) error {
	if name == "" {
		return ErrEmptyLogin
	}
	if c.state != Unregistered {
		return ErrAlreadyLoggedIn
	}
	if err := c.signaler.Send(models.NewLogin(name)); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	c.pendingLogins++
	c.login = name
	c.setState(Registering)
	return nil
}

func (c *Controller) doConnect(to string) error {
	switch {
	case c.state == Unregistered || c.state == Registering:
		return ErrNotRegistered
	case to == "":
		return ErrEmptyPeer
	case to == c.login:
		return ErrSelfConnect
	case c.state != Registered:
		return ErrBusy
	}

	link, err := c.ensureLink()
	if err != nil {
		return c.failNegotiation("create peer link", err)
	}
	channel, err := link.OpenChannel(ChannelLabel)
	if err != nil {
		return c.failNegotiation("open data channel", err)
	}
	c.attachChannel(channel)

	offer, err := link.CreateOffer()
	if err != nil {
		return c.failNegotiation("create offer", err)
	}
	if err := link.SetLocalDescription(offer); err != nil {
		return c.failNegotiation("set local description", err)
	}

	c.peer = to
	if err := c.signaler.Send(models.NewOffer(c.login, to, offer)); err != nil {
		return c.failNegotiation("send offer", err)
	}
	c.setState(NegotiatingOfferer)
	return nil
}

func (c *Controller) doSend(data []byte) error {
	if c.state != Connected || c.channel == nil {
		return ErrNotConnected
	}
	if err := c.channel.Send(data); err != nil {
		return fmt.Errorf("send to %s: %w", c.peer, err)
	}
	return nil
}

func (c *Controller) doDisconnect() {
	if !c.state.Paired() {
		return
	}
	c.setState(Disconnecting)
	if err := c.signaler.Send(models.NewLogout(c.login, c.peer)); err != nil {
		c.log.Warn("failed to notify peer of disconnect", zap.String("peer", c.peer), zap.Error(err))
	}
	c.teardownPeer()
}

func (c *Controller) doLogout() {
	if c.state == Unregistered {
		return
	}
	if err := c.signaler.Send(models.NewLogout(c.login, "")); err != nil {
		c.log.Warn("failed to send logout", zap.Error(err))
	}
	c.closeLink()
	c.peer = ""
	c.login = ""
	c.setState(Unregistered)
}

func (c *Controller) onMessage(msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeLogin:
		c.onLoginReply(msg)
	case models.MessageTypeOffer:
		c.onOffer(msg)
	case models.MessageTypeAnswer:
		c.onAnswer(msg)
	case models.MessageTypeCandidate:
		c.onRemoteCandidate(msg)
	case models.MessageTypeLogout:
		c.onLogout(msg)
	case models.MessageTypeError:
		c.log.Warn("relay reported error", zap.String("message", msg.Message))
		c.observer.ServerError(msg.Message)
	default:
		c.log.Debug("ignoring message", zap.String("type", string(msg.Type)))
	}
}

func (c *Controller) onLoginReply(msg *models.Message) {
	if c.pendingLogins == 0 {
		c.log.Debug("ignoring unsolicited login reply")
		return
	}
	c.pendingLogins--
	if c.pendingLogins > 0 {
		c.log.Debug("ignoring login reply to an earlier request", zap.Int("pending", c.pendingLogins))
		return
	}
	if c.state != Registering {
		c.log.Debug("ignoring login reply", zap.Stringer("state", c.state))
		return
	}
	if !msg.Succeeded() {
		refused := c.login
		c.login = ""
		c.setState(Unregistered)
		c.observer.LoginRefused(refused)
		return
	}
	c.setState(Registered)
	if err := c.resetLink(); err != nil {
		c.log.Warn("failed to create peer link", zap.Error(err))
	}
}

func (c *Controller) onOffer(msg *models.Message) {
	if c.state != Registered {
		c.log.Info("ignoring offer while busy", zap.String("from", msg.From), zap.Stringer("state", c.state))
		return
	}

	link, err := c.ensureLink()
	if err != nil {
		c.failNegotiation("create peer link", err)
		return
	}
	if err := link.SetRemoteDescription(msg.SDP); err != nil {
		c.failNegotiation("set remote description", err)
		return
	}
	answer, err := link.CreateAnswer()
	if err != nil {
		c.failNegotiation("create answer", err)
		return
	}
	if err := link.SetLocalDescription(answer); err != nil {
		c.failNegotiation("set local description", err)
		return
	}

	c.peer = msg.From
	if err := c.signaler.Send(models.NewAnswer(c.login, msg.From, answer)); err != nil {
		c.failNegotiation("send answer", err)
		return
	}
	c.setState(NegotiatingAnswerer)
}

func (c *Controller) onAnswer(msg *models.Message) {
	if !c.state.Paired() || msg.From != c.peer || c.link == nil {
		c.log.Debug("ignoring answer", zap.String("from", msg.From))
		return
	}
	if err := c.link.SetRemoteDescription(msg.SDP); err != nil {
		c.log.Warn("failed to apply answer", zap.String("from", msg.From), zap.Error(err))
		c.observer.NegotiationFailed(fmt.Errorf("set remote description: %w", err))
	}
}

func (c *Controller) onRemoteCandidate(msg *models.Message) {
	if c.link == nil || (c.peer != "" && msg.From != c.peer) {
		c.log.Debug("ignoring candidate", zap.String("from", msg.From))
		return
	}
	if err := c.link.AddICECandidate(msg.Candidate); err != nil {
		c.log.Warn("failed to add candidate", zap.String("from", msg.From), zap.Error(err))
	}
}

func (c *Controller) onLogout(msg *models.Message) {
	if !c.state.Paired() || msg.Login == "" || msg.Login != c.peer {
		return
	}
	c.log.Info("peer left", zap.String("peer", c.peer))
	c.teardownPeer()
}

func (c *Controller) onSignalingLost() {
	c.pendingLogins = 0
	if c.state == Unregistered {
		return
	}
	c.log.Warn("signaling connection lost")
	c.closeLink()
	c.peer = ""
	c.login = ""
	c.setState(Unregistered)
}

func (c *Controller) onLocalCandidate(gen uint64, candidate json.RawMessage) {
	if gen != c.gen || c.peer == "" {
		return
	}
	if err := c.signaler.Send(models.NewCandidate(c.login, c.peer, candidate)); err != nil {
		c.log.Warn("failed to send candidate", zap.Error(err))
	}
}

func (c *Controller) onChannelOpen(gen uint64) {
	if gen != c.gen || !c.state.Negotiating() {
		return
	}
	c.setState(Connected)
}

func (c *Controller) onChannelClose(gen uint64) {
	if gen != c.gen || !c.state.Paired() {
		return
	}
	c.log.Info("data channel closed", zap.String("peer", c.peer))
	c.teardownPeer()
}

// teardownPeer drops the current pairing and prepares a fresh link so a
// new negotiation can start right away.
func (c *Controller) teardownPeer() {
	c.peer = ""
	if err := c.resetLink(); err != nil {
		c.log.Warn("failed to recreate peer link", zap.Error(err))
	}
	c.setState(Registered)
}

func (c *Controller) failNegotiation(step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)
	c.log.Warn("negotiation failed", zap.Error(wrapped))
	c.observer.NegotiationFailed(wrapped)
	c.peer = ""
	if err := c.resetLink(); err != nil {
		c.log.Warn("failed to recreate peer link", zap.Error(err))
	}
	return wrapped
}

func (c *Controller) attachChannel(channel DataChannel) {
	if c.channel != nil && c.channel != channel {
		c.channel.Close()
	}
	c.channel = channel

	gen := c.gen
	channel.OnOpen(func() {
		c.post(event{kind: evChannelOpen, gen: gen})
	})
	channel.OnClose(func() {
		c.post(event{kind: evChannelClose, gen: gen})
	})
	channel.OnMessage(func(data []byte) {
		c.post(event{kind: evChannelMessage, gen: gen, data: append([]byte(nil), data...)})
	})
}

func (c *Controller) ensureLink() (PeerLink, error) {
	if c.link != nil {
		return c.link, nil
	}
	if err := c.resetLink(); err != nil {
		return nil, err
	}
	return c.link, nil
}

func (c *Controller) resetLink() error {
	c.closeLink()
	link, err := c.newLink(&linkEvents{controller: c, gen: c.gen})
	if err != nil {
		return err
	}
	c.link = link
	return nil
}

// closeLink releases the channel and link and bumps the generation so
// their late events are ignored.
func (c *Controller) closeLink() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			c.log.Debug("closing peer link", zap.Error(err))
		}
		c.link = nil
	}
	c.gen++
}

func (c *Controller) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.publish()
	c.log.Debug("state changed", zap.Stringer("from", from), zap.Stringer("to", to), zap.String("peer", c.peer))
	c.observer.StateChanged(from, to, c.peer)
}

func (c *Controller) publish() {
	c.mu.Lock()
	c.status = Status{State: c.state, Login: c.login, Peer: c.peer}
	c.mu.Unlock()
}

type linkEvents struct {
	controller *Controller
	gen        uint64
}

func (e *linkEvents) ICECandidate(candidate json.RawMessage) {
	e.controller.post(event{kind: evLocalCandidate, gen: e.gen, candidate: candidate})
}

func (e *linkEvents) DataChannel(channel DataChannel) {
	e.controller.post(event{kind: evDataChannel, gen: e.gen, channel: channel})
}
