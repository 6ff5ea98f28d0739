package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// Socket is a bidirectional client transport. *websocket.Conn satisfies it.
type Socket interface {
	realtime.Transport
	ReadJSON(v interface{}) error
}

// SessionOptions carries metadata extracted during the HTTP upgrade.
type SessionOptions struct {
	ProfileID     uint
	CorrelationID string
	Context       context.Context
}

// SessionService binds client sockets to the connection registry.
type SessionService interface {
	Serve(socket Socket, opts SessionOptions) error
	Stats() realtime.RegistryStats
}

type sessionService struct {
	registry     *realtime.Registry
	bus          *realtime.Bus
	scopes       scopeResolver
	validator    *validator.Validate
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(registry *realtime.Registry, bus *realtime.Bus, scopes repository.ScopeRepository, validate *validator.Validate, pingInterval time.Duration, logger zerolog.Logger) SessionService {
	return &sessionService{
		registry:     registry,
		bus:          bus,
		scopes:       scopeResolver{repo: scopes},
		validator:    validate,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "session_service").Logger(),
	}
}

// Serve admits the socket and processes its client frames until the socket
// closes. The connection leaves every room on return, whichever way the
// session ends.
func (s *sessionService) Serve(socket Socket, opts SessionOptions) error {
	conn, err := s.registry.Admit(socket, opts.ProfileID)
	if err != nil {
		if errors.Is(err, realtime.ErrUnauthenticated) {
			return ErrUnauthorized
		}
		return err
	}
	defer s.registry.DropAll(conn.ID())

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	logger := s.logger.With().
		Str("connection_id", conn.ID()).
		Uint("profile_id", opts.ProfileID).
		Str("correlation_id", opts.CorrelationID).
		Logger()

	go conn.WritePump(s.pingInterval, logger)

	s.send(conn, realtime.EventSessionReady, dto.SessionReady{
		ConnectionID: conn.ID(),
		ProfileID:    opts.ProfileID,
		Rooms:        roomNames(conn.Rooms()),
	})

	joined := make(map[realtime.RoomKey]*realtime.Membership)
	defer func() {
		for _, membership := range joined {
			membership.Release()
		}
	}()

	for {
		var frame dto.ClientFrame
		if err := socket.ReadJSON(&frame); err != nil {
			logger.Debug().Err(err).Msg("realtime read loop ended")
			return nil
		}

		select {
		case <-conn.Done():
			return nil
		default:
		}

		s.handleFrame(ctx, conn, frame, joined, logger)
	}
}

func (s *sessionService) handleFrame(ctx context.Context, conn *realtime.Connection, frame dto.ClientFrame, joined map[realtime.RoomKey]*realtime.Membership, logger zerolog.Logger) {
	frame.Action = strings.ToLower(strings.TrimSpace(frame.Action))
	frame.Scope = strings.ToLower(strings.TrimSpace(frame.Scope))

	if err := s.validator.Struct(frame); err != nil {
		s.reject(conn, frame.Action, "invalid frame")
		return
	}

	switch frame.Action {
	case dto.FrameActionPing:
		s.send(conn, realtime.EventPong, nil)
	case dto.FrameActionJoin:
		scope, ok := s.frameScope(conn, frame)
		if !ok {
			return
		}
		if _, _, err := s.scopes.resolveForMember(ctx, scope, conn.Identity()); err != nil {
			if !isNotFound(err) {
				logger.Warn().Err(err).Str("scope", scope.Type).Uint("scope_id", scope.ID).Msg("failed to resolve scope for join")
			}
			s.reject(conn, frame.Action, "scope not found")
			return
		}

		room := scope.Room()
		if _, exists := joined[room]; !exists {
			membership, err := s.registry.Join(conn.ID(), room)
			if err != nil {
				s.reject(conn, frame.Action, "join failed")
				return
			}
			joined[room] = membership
		}
		s.send(conn, realtime.EventRoomJoined, dto.RoomAck{Room: room.String()})
	case dto.FrameActionLeave:
		scope, ok := s.frameScope(conn, frame)
		if !ok {
			return
		}
		room := scope.Room()
		if membership, exists := joined[room]; exists {
			membership.Release()
			delete(joined, room)
		}
		s.send(conn, realtime.EventRoomLeft, dto.RoomAck{Room: room.String()})
	}
}

func (s *sessionService) frameScope(conn *realtime.Connection, frame dto.ClientFrame) (dto.Scope, bool) {
	if frame.Scope == "" || frame.ID == 0 {
		s.reject(conn, frame.Action, "scope and id are required")
		return dto.Scope{}, false
	}
	return dto.Scope{Type: frame.Scope, ID: frame.ID}, true
}

func (s *sessionService) reject(conn *realtime.Connection, action, message string) {
	s.send(conn, realtime.EventError, dto.ErrorFrame{Action: action, Message: message})
}

func (s *sessionService) send(conn *realtime.Connection, event string, payload interface{}) {
	if err := s.bus.Send(conn, event, payload); err != nil {
		s.logger.Warn().Err(err).Str("connection_id", conn.ID()).Str("event", event).Msg("failed to send frame")
	}
}

func (s *sessionService) Stats() realtime.RegistryStats {
	return s.registry.Stats()
}

func roomNames(rooms []realtime.RoomKey) []string {
	out := make([]string, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.String())
	}
	return out
}
