package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mossy-p/p2p-signaling/internal/models"
	"go.uber.org/zap"
)

var (
	ErrNotLoggedIn     = errors.New("connection is not logged in")
	ErrSenderMismatch  = errors.New("sender does not match connection login")
	ErrAlreadyLoggedIn = errors.New("connection already holds a login")
)

// Conn is the registry's view of a live signaling connection. Send must
// not block; it reports false when the frame could not be queued.
type Conn interface {
	ID() string
	Send(data []byte) bool
}

// Presence mirrors login state to an external store. It is called
// outside the registry lock and its failures never affect routing.
type Presence interface {
	Online(ctx context.Context, login, connID string) error
	Offline(ctx context.Context, login string) error
}

// Entry binds a login to its connection. Other is the login this client
// last relayed to, kept only to cascade a logout.
type Entry struct {
	Login string
	Conn  Conn
	Other string
}

// Registry owns the login -> connection mapping. Every operation holds mu
// for its whole check-then-set sequence; sends are non-blocking.
type Registry struct {
	mu      sync.Mutex
	byLogin map[string]*Entry
	byConn  map[string]*Entry

	presence Presence
	log      *zap.Logger
}

// New creates an empty registry. presence may be nil.
func New(logger *zap.Logger, presence Presence) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byLogin:  make(map[string]*Entry),
		byConn:   make(map[string]*Entry),
		presence: presence,
		log:      logger.With(zap.String("component", "registry")),
	}
}

// Login registers login for conn. It fails when the name is empty, already
// held by a live entry, or when conn already holds a login.
func (r *Registry) Login(ctx context.Context, conn Conn, login string) bool {
	r.mu.Lock()
	if login == "" {
		r.mu.Unlock()
		r.log.Info("refused empty login", zap.String("connId", conn.ID()))
		return false
	}
	if held, ok := r.byConn[conn.ID()]; ok {
		r.mu.Unlock()
		r.log.Info("refused login", zap.String("login", login), zap.String("held", held.Login), zap.Error(ErrAlreadyLoggedIn))
		return false
	}
	if _, taken := r.byLogin[login]; taken {
		r.mu.Unlock()
		r.log.Info("refused login", zap.String("login", login))
		return false
	}
	entry := &Entry{Login: login, Conn: conn}
	r.byLogin[login] = entry
	r.byConn[conn.ID()] = entry
	r.mu.Unlock()

	r.log.Info("login", zap.String("login", login), zap.String("connId", conn.ID()))
	if r.presence != nil {
		if err := r.presence.Online(ctx, login, conn.ID()); err != nil {
			r.log.Warn("presence update failed", zap.String("login", login), zap.Error(err))
		}
	}
	return true
}

// Relay forwards raw verbatim to msg.To and records msg.To as the sender's
// Other hint. An unregistered recipient is not an error: delivered is false
// and nothing is sent.
func (r *Registry) Relay(conn Conn, msg *models.Message, raw []byte) (delivered bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.byConn[conn.ID()]
	if !ok {
		return false, ErrNotLoggedIn
	}
	if msg.From != sender.Login {
		return false, ErrSenderMismatch
	}

	target, ok := r.byLogin[msg.To]
	if !ok {
		r.log.Debug("dropped relay, recipient offline",
			zap.String("type", string(msg.Type)), zap.String("from", msg.From), zap.String("to", msg.To))
		return false, nil
	}

	sender.Other = msg.To
	if !target.Conn.Send(raw) {
		r.log.Warn("recipient send buffer full", zap.String("to", msg.To))
	}
	r.log.Debug("relayed", zap.String("type", string(msg.Type)), zap.String("from", msg.From), zap.String("to", msg.To))
	return true, nil
}

// Logout removes login's entry and cascades a synthetic logout to every
// peer paired with it. It is a no-op when login is not registered.
func (r *Registry) Logout(ctx context.Context, login string) {
	r.mu.Lock()
	entry, ok := r.byLogin[login]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(entry)
	r.mu.Unlock()

	r.log.Info("logout", zap.String("login", login))
	r.offline(ctx, login)
}

// LogoutConn handles a logout frame from conn. login, when set, must name
// the connection's own login.
func (r *Registry) LogoutConn(ctx context.Context, conn Conn, login string) error {
	r.mu.Lock()
	entry, ok := r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if login != "" && login != entry.Login {
		r.mu.Unlock()
		return ErrSenderMismatch
	}
	r.removeLocked(entry)
	r.mu.Unlock()

	r.log.Info("logout", zap.String("login", entry.Login))
	r.offline(ctx, entry.Login)
	return nil
}

// Hangup ends the pairing between conn's login and to without logging the
// sender out. The recipient, if registered, receives a logout naming the
// sender.
func (r *Registry) Hangup(conn Conn, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.byConn[conn.ID()]
	if !ok {
		return ErrNotLoggedIn
	}
	if sender.Other == to {
		sender.Other = ""
	}
	target, ok := r.byLogin[to]
	if !ok {
		return nil
	}
	if target.Other == sender.Login {
		target.Other = ""
	}
	r.sendLogoutLocked(target, sender.Login)
	r.log.Info("hangup", zap.String("login", sender.Login), zap.String("peer", to))
	return nil
}

// ConnectionClosed is Logout triggered by transport closure. Connections
// that never completed login are ignored.
func (r *Registry) ConnectionClosed(ctx context.Context, conn Conn) {
	r.mu.Lock()
	entry, ok := r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(entry)
	r.mu.Unlock()

	r.log.Info("connection closed", zap.String("login", entry.Login), zap.String("connId", conn.ID()))
	r.offline(ctx, entry.Login)
}

// Lookup returns a copy of login's entry.
func (r *Registry) Lookup(login string) (models.EntrySnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLogin[login]
	if !ok {
		return models.EntrySnapshot{}, false
	}
	return snapshot(entry), true
}

// Snapshot returns copies of all entries ordered by login.
func (r *Registry) Snapshot() []models.EntrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]models.EntrySnapshot, 0, len(r.byLogin))
	for _, entry := range r.byLogin {
		entries = append(entries, snapshot(entry))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Login < entries[j].Login })
	return entries
}

func (r *Registry) removeLocked(entry *Entry) {
	delete(r.byLogin, entry.Login)
	delete(r.byConn, entry.Conn.ID())

	notified := make(map[string]bool)
	if peer, ok := r.byLogin[entry.Other]; ok {
		notified[peer.Login] = true
		peer.Other = ""
		r.sendLogoutLocked(peer, entry.Login)
	}
	for _, peer := range r.byLogin {
		if peer.Other != entry.Login || notified[peer.Login] {
			continue
		}
		notified[peer.Login] = true
		peer.Other = ""
		r.sendLogoutLocked(peer, entry.Login)
	}
}

func (r *Registry) sendLogoutLocked(target *Entry, login string) {
	data, err := models.NewLogout(login, "").Encode()
	if err != nil {
		r.log.Error("failed to encode logout", zap.Error(err))
		return
	}
	if !target.Conn.Send(data) {
		r.log.Warn("recipient send buffer full", zap.String("to", target.Login))
	}
}

func (r *Registry) offline(ctx context.Context, login string) {
	if r.presence == nil {
		return
	}
	if err := r.presence.Offline(ctx, login); err != nil {
		r.log.Warn("presence update failed", zap.String("login", login), zap.Error(err))
	}
}

func snapshot(entry *Entry) models.EntrySnapshot {
	return models.EntrySnapshot{Login: entry.Login, ConnID: entry.Conn.ID(), Other: entry.Other}
}
