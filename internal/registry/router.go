package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mossy-p/p2p-signaling/internal/models"
	"go.uber.org/zap"
)

// Handle parses one inbound frame from conn and applies it. Protocol errors
// are answered with an error frame; the connection is never dropped here.
func (r *Registry) Handle(ctx context.Context, conn Conn, raw []byte) {
	msg, err := models.Parse(raw)
	switch {
	case errors.Is(err, models.ErrMalformed):
		r.log.Info("malformed", zap.String("connId", conn.ID()), zap.ByteString("raw", raw))
		r.reply(conn, models.NewError("Malformed command: "+string(raw)))
		return
	case errors.Is(err, models.ErrUnknownType):
		r.log.Info("unknown", zap.String("connId", conn.ID()), zap.String("type", string(msg.Type)))
		r.reply(conn, models.NewError("Unknown command: "+string(msg.Type)))
		return
	}

	if err := msg.Validate(); err != nil {
		r.reply(conn, models.NewError(fmt.Sprintf("Invalid %s command: %v", msg.Type, err)))
		return
	}

	if models.IsRelayed(msg.Type) {
		if _, err := r.Relay(conn, msg, raw); err != nil {
			r.reply(conn, models.NewError(fmt.Sprintf("Rejected %s: %v", msg.Type, err)))
		}
		return
	}

	switch msg.Type {
	case models.MessageTypeLogin:
		r.reply(conn, models.NewLoginReply(r.Login(ctx, conn, msg.Login)))

	case models.MessageTypeLogout:
		if msg.To != "" {
			err = r.Hangup(conn, msg.To)
		} else {
			err = r.LogoutConn(ctx, conn, msg.Login)
		}
		if err != nil {
			r.reply(conn, models.NewError(fmt.Sprintf("Rejected logout: %v", err)))
		}

	default:
		r.reply(conn, models.NewError("Unexpected command: "+string(msg.Type)))
	}
}

func (r *Registry) reply(conn Conn, msg *models.Message) {
	data, err := msg.Encode()
	if err != nil {
		r.log.Error("failed to encode reply", zap.Error(err))
		return
	}
	if !conn.Send(data) {
		r.log.Warn("reply dropped, send buffer full", zap.String("connId", conn.ID()))
	}
}
