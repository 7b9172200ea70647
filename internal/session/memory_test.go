package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/mossy-p/p2p-signaling/internal/models"
)

// memoryRelay routes signaling between controllers in the same process.
type memoryRelay struct {
	mu      sync.Mutex
	peers   map[string]*memoryPeer
	pending map[string]*memoryChannel
}

func newMemoryRelay() *memoryRelay {
	return &memoryRelay{
		peers:   make(map[string]*memoryPeer),
		pending: make(map[string]*memoryChannel),
	}
}

type memoryPeer struct {
	login      string
	relay      *memoryRelay
	controller *Controller
	received   chan string
}

type signalerFunc func(*models.Message) error

func (f signalerFunc) Send(msg *models.Message) error { return f(msg) }

type receivingObserver struct {
	NopObserver
	received chan string
}

func (o receivingObserver) Received(peer string, data []byte) {
	o.received <- peer + ": " + string(data)
}

func (r *memoryRelay) join(login string) *memoryPeer {
	p := &memoryPeer{login: login, relay: r, received: make(chan string, 8)}
	p.controller = New(signalerFunc(p.send), p.newLink, receivingObserver{received: p.received}, nil)

	r.mu.Lock()
	r.peers[login] = p
	r.mu.Unlock()
	return p
}

func (p *memoryPeer) send(msg *models.Message) error {
	r := p.relay
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Type {
	case models.MessageTypeLogin:
		p.controller.HandleMessage(models.NewLoginReply(true))
	case models.MessageTypeLogout:
		for login, other := range r.peers {
			if login == p.login || (msg.To != "" && msg.To != login) {
				continue
			}
			other.controller.HandleMessage(models.NewLogout(p.login, ""))
		}
	default:
		if target, ok := r.peers[msg.To]; ok {
			target.controller.HandleMessage(msg)
		}
	}
	return nil
}

func (p *memoryPeer) newLink(events LinkEvents) (PeerLink, error) {
	return &memoryLink{owner: p, events: events}, nil
}

type memoryDescription struct {
	Type  string `json:"type"`
	Owner string `json:"owner"`
}

// memoryLink pairs channels through the relay: the answering side picks up
// the offerer's pending channel when it applies the offer, and both ends
// open once the offerer applies the answer.
type memoryLink struct {
	owner  *memoryPeer
	events LinkEvents

	mu      sync.Mutex
	channel *memoryChannel
	closed  bool
}

func (l *memoryLink) describe(kind string) (json.RawMessage, error) {
	return json.Marshal(memoryDescription{Type: kind, Owner: l.owner.login})
}

func (l *memoryLink) CreateOffer() (json.RawMessage, error)  { return l.describe("offer") }
func (l *memoryLink) CreateAnswer() (json.RawMessage, error) { return l.describe("answer") }

func (l *memoryLink) SetLocalDescription(json.RawMessage) error {
	l.events.ICECandidate(json.RawMessage(`{"candidate":"host"}`))
	return nil
}

func (l *memoryLink) SetRemoteDescription(raw json.RawMessage) error {
	var desc memoryDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return err
	}

	r := l.owner.relay
	switch desc.Type {
	case "offer":
		r.mu.Lock()
		remote, ok := r.pending[desc.Owner]
		r.mu.Unlock()
		if !ok {
			return errors.New("no pending channel")
		}
		local := &memoryChannel{remote: remote}
		remote.mu.Lock()
		remote.remote = local
		remote.mu.Unlock()

		l.mu.Lock()
		l.channel = local
		l.mu.Unlock()
		l.events.DataChannel(local)

	case "answer":
		r.mu.Lock()
		delete(r.pending, l.owner.login)
		r.mu.Unlock()

		l.mu.Lock()
		local := l.channel
		l.mu.Unlock()
		local.markOpen()
		local.peer().markOpen()
	}
	return nil
}

func (l *memoryLink) AddICECandidate(json.RawMessage) error { return nil }

func (l *memoryLink) OpenChannel(string) (DataChannel, error) {
	channel := &memoryChannel{}
	l.mu.Lock()
	l.channel = channel
	l.mu.Unlock()

	r := l.owner.relay
	r.mu.Lock()
	r.pending[l.owner.login] = channel
	r.mu.Unlock()
	return channel, nil
}

func (l *memoryLink) Close() error {
	l.mu.Lock()
	channel := l.channel
	l.closed = true
	l.mu.Unlock()
	if channel != nil {
		channel.Close()
	}
	return nil
}

type memoryChannel struct {
	mu        sync.Mutex
	remote    *memoryChannel
	open      bool
	closed    bool
	onOpen    func()
	onClose   func()
	onMessage func([]byte)
}

func (ch *memoryChannel) peer() *memoryChannel {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.remote
}

func (ch *memoryChannel) Send(data []byte) error {
	ch.mu.Lock()
	open, remote := ch.open && !ch.closed, ch.remote
	ch.mu.Unlock()
	if !open || remote == nil {
		return errors.New("channel not open")
	}

	remote.mu.Lock()
	deliver := remote.onMessage
	remote.mu.Unlock()
	if deliver != nil {
		payload := append([]byte(nil), data...)
		go deliver(payload)
	}
	return nil
}

func (ch *memoryChannel) OnOpen(f func()) {
	ch.mu.Lock()
	ch.onOpen = f
	open := ch.open
	ch.mu.Unlock()
	if open {
		go f()
	}
}

func (ch *memoryChannel) OnClose(f func()) {
	ch.mu.Lock()
	ch.onClose = f
	ch.mu.Unlock()
}

func (ch *memoryChannel) OnMessage(f func([]byte)) {
	ch.mu.Lock()
	ch.onMessage = f
	ch.mu.Unlock()
}

func (ch *memoryChannel) markOpen() {
	ch.mu.Lock()
	ch.open = true
	f := ch.onOpen
	ch.mu.Unlock()
	if f != nil {
		go f()
	}
}

func (ch *memoryChannel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	remote := ch.remote
	ch.mu.Unlock()

	if remote != nil {
		remote.mu.Lock()
		f := remote.onClose
		remote.mu.Unlock()
		if f != nil {
			go f()
		}
	}
	return nil
}
