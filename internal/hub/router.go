package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
	"github.com/orchids/event-stream/pkg/validator"
)

const (
	codeMalformedFrame  = "MALFORMED_FRAME"
	codeUnknownType     = "UNKNOWN_MESSAGE_TYPE"
	codeUnsupportedType = "UNSUPPORTED_MESSAGE_TYPE"
)

// HandlerFunc processes one inbound frame for one connection.
type HandlerFunc func(ctx context.Context, conn *domain.Connection, frame domain.Frame)

// AcceptHook observes successful accepts; DisconnectHook observes
// removal. The governor and leak detector hang lifetime accounting and
// resource tracking off these.
type AcceptHook func(conn *domain.Connection)

type DisconnectHook func(conn *domain.Connection, reason string)

type RouterConfig struct {
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	ConnectionTimeout time.Duration
}

type session struct {
	transport Transport
	subs      map[domain.EventType]struct{}
}

// Router owns the connect/disconnect lifecycle, inbound dispatch, the two
// periodic loops (heartbeat and idle cleanup), and the broadcast scopes.
// Membership authority stays with the Pool; the router only keeps the
// transport and subscription state per connection id.
type Router struct {
	cfg  RouterConfig
	pool *Pool
	log  *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	handlerMu sync.RWMutex
	handlers  map[domain.MessageType]HandlerFunc

	hookMu          sync.RWMutex
	acceptHooks     []AcceptHook
	disconnectHooks []DisconnectHook

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRouter(cfg RouterConfig, pool *Pool, log *logger.Logger) *Router {
	r := &Router{
		cfg:      cfg,
		pool:     pool,
		log:      log,
		sessions: make(map[string]*session),
		handlers: make(map[domain.MessageType]HandlerFunc),
	}
	r.registerDefaultHandlers()
	return r
}

func (r *Router) RegisterHandler(msgType domain.MessageType, h HandlerFunc) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	r.handlers[msgType] = h
}

func (r *Router) OnAccept(hook AcceptHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.acceptHooks = append(r.acceptHooks, hook)
}

func (r *Router) OnDisconnect(hook DisconnectHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.disconnectHooks = append(r.disconnectHooks, hook)
}

// Accept wraps a transport-level session as a pooled connection. Identifier
// validation and the capacity check both happen before any registration, so
// a rejected accept leaves no partial state.
func (r *Router) Accept(transport Transport, subjectID, ownerID string) (*domain.Connection, error) {
	if err := validator.ValidateIdentifier(subjectID); err != nil {
		return nil, domain.ErrInvalidSubjectID
	}
	if err := validator.ValidateIdentifier(ownerID); err != nil {
		return nil, domain.ErrInvalidOwnerID
	}

	conn := domain.NewConnection(subjectID, ownerID)
	if !r.pool.Add(conn) {
		return nil, domain.ErrPoolFull
	}

	r.mu.Lock()
	r.sessions[conn.ID] = &session{
		transport: transport,
		subs:      make(map[domain.EventType]struct{}),
	}
	r.mu.Unlock()

	welcome := domain.Frame{
		Type:      domain.MessageTypeConnection,
		Data:      map[string]interface{}{"connection_id": conn.ID},
		Timestamp: time.Now(),
	}
	if !r.Send(conn.ID, welcome) {
		return nil, fmt.Errorf("connection %s dropped during accept", conn.ID)
	}

	r.log.Info(context.Background(), "connection accepted", map[string]interface{}{
		"connection_id": conn.ID,
		"subject_id":    subjectID,
		"owner_id":      ownerID,
		"active":        r.pool.Count(),
	})

	r.hookMu.RLock()
	hooks := r.acceptHooks
	r.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(conn)
	}
	return conn, nil
}

// Disconnect removes a connection from the pool and closes its transport.
// Safe to call more than once for the same id.
func (r *Router) Disconnect(id, reason string) {
	conn := r.pool.Remove(id)

	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		sess.transport.Close()
	}
	if conn == nil {
		return
	}

	r.log.Info(context.Background(), "connection closed", map[string]interface{}{
		"connection_id": id,
		"reason":        reason,
		"lifetime_ms":   time.Since(conn.CreatedAt).Milliseconds(),
	})

	r.hookMu.RLock()
	hooks := r.disconnectHooks
	r.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(conn, reason)
	}
}

// Send delivers one frame to one connection. A transport failure removes
// the connection and returns false; it never aborts a broadcast in flight.
func (r *Router) Send(id string, frame domain.Frame) bool {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := frame.Encode()
	if err != nil {
		r.log.Error(context.Background(), "failed to encode frame", err, map[string]interface{}{
			"connection_id": id,
			"type":          string(frame.Type),
		})
		return false
	}

	if err := sess.transport.Write(data); err != nil {
		r.log.Warn(context.Background(), "send failed, dropping connection", map[string]interface{}{
			"connection_id": id,
			"error":         err.Error(),
		})
		r.Disconnect(id, "send_failure")
		return false
	}

	r.pool.Record(id, "out", frame.Type)
	return true
}

// BroadcastToSubject fans a frame out to every connection observing the
// subject. Partial success is the normal outcome; the return value is the
// count of successful deliveries.
func (r *Router) BroadcastToSubject(subjectID string, frame domain.Frame) int {
	return r.sendAll(r.pool.BySubject(subjectID), frame)
}

func (r *Router) BroadcastToOwner(ownerID string, frame domain.Frame) int {
	return r.sendAll(r.pool.ByOwner(ownerID), frame)
}

func (r *Router) BroadcastAll(frame domain.Frame) int {
	return r.sendAll(r.pool.All(), frame)
}

// BroadcastEvent delivers an event frame to connections subscribed to its
// event type. A connection with no explicit subscriptions receives every
// event type.
func (r *Router) BroadcastEvent(eventType domain.EventType, data map[string]interface{}) int {
	frame := domain.NewEventFrame(eventType, data)
	sent := 0
	for _, conn := range r.pool.All() {
		if !r.subscribed(conn.ID, eventType) {
			continue
		}
		if r.Send(conn.ID, frame) {
			sent++
		}
	}
	return sent
}

func (r *Router) sendAll(conns []*domain.Connection, frame domain.Frame) int {
	sent := 0
	for _, conn := range conns {
		if r.Send(conn.ID, frame) {
			sent++
		}
	}
	return sent
}

func (r *Router) subscribed(id string, eventType domain.EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return false
	}
	if len(sess.subs) == 0 {
		return true
	}
	_, ok = sess.subs[eventType]
	return ok
}

// HandleInbound dispatches one raw frame from a connection. Protocol
// errors answer with an error frame and keep the connection open.
func (r *Router) HandleInbound(ctx context.Context, id string, data []byte) {
	conn, ok := r.pool.ByID(id)
	if !ok {
		return
	}

	frame, err := domain.DecodeFrame(data)
	if err != nil {
		r.Send(id, domain.NewErrorFrame(codeMalformedFrame, "frame is not valid JSON"))
		return
	}
	if !frame.Type.IsValid() {
		r.Send(id, domain.NewErrorFrame(codeUnknownType, "unknown message type "+string(frame.Type)))
		return
	}

	r.pool.Record(id, "in", frame.Type)

	r.handlerMu.RLock()
	handler, ok := r.handlers[frame.Type]
	r.handlerMu.RUnlock()
	if !ok {
		r.Send(id, domain.NewErrorFrame(codeUnsupportedType, "no handler for "+string(frame.Type)))
		return
	}
	handler(ctx, conn, frame)
}

func (r *Router) registerDefaultHandlers() {
	r.handlers[domain.MessageTypePing] = func(ctx context.Context, conn *domain.Connection, frame domain.Frame) {
		r.pool.Touch(conn.ID, time.Now())
		r.Send(conn.ID, domain.Frame{Type: domain.MessageTypePong, Timestamp: time.Now()})
	}
	r.handlers[domain.MessageTypePong] = func(ctx context.Context, conn *domain.Connection, frame domain.Frame) {
		r.pool.Touch(conn.ID, time.Now())
	}
	r.handlers[domain.MessageTypeHeartbeat] = func(ctx context.Context, conn *domain.Connection, frame domain.Frame) {
		r.pool.Touch(conn.ID, time.Now())
	}
	r.handlers[domain.MessageTypeSubscribe] = func(ctx context.Context, conn *domain.Connection, frame domain.Frame) {
		r.updateSubscriptions(conn.ID, frame.EventTypes, true)
	}
	r.handlers[domain.MessageTypeUnsubscribe] = func(ctx context.Context, conn *domain.Connection, frame domain.Frame) {
		r.updateSubscriptions(conn.ID, frame.EventTypes, false)
	}
	r.handlers[domain.MessageTypeGetStatus] = func(ctx context.Context, conn *domain.Connection, frame domain.Frame) {
		status, err := r.Status(conn.ID)
		if err != nil {
			return
		}
		r.Send(conn.ID, domain.Frame{
			Type:      domain.MessageTypeConnection,
			Data:      map[string]interface{}{"status": status},
			Timestamp: time.Now(),
		})
	}
}

func (r *Router) updateSubscriptions(id string, eventTypes []string, add bool) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		for _, et := range eventTypes {
			if add {
				sess.subs[domain.EventType(et)] = struct{}{}
			} else {
				delete(sess.subs, domain.EventType(et))
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.Send(id, domain.Frame{
		Type:       domain.MessageTypeSubscribe,
		EventTypes: r.Subscriptions(id),
		Timestamp:  time.Now(),
	})
}

func (r *Router) Subscriptions(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sess.subs))
	for et := range sess.subs {
		out = append(out, string(et))
	}
	return out
}

func (r *Router) Status(id string) (*domain.ConnectionStatus, error) {
	status, ok := r.pool.Snapshot(id)
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	status.Subscriptions = r.Subscriptions(id)
	return &status, nil
}

// Start launches the heartbeat and idle-cleanup loops. The two loops run
// independently and are never invoked re-entrantly.
func (r *Router) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.heartbeatLoop(ctx)
	go r.cleanupLoop(ctx)
}

// Stop cancels both loops and returns only after they have exited, so no
// heartbeat or cleanup tick runs after Stop returns.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Router) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeatTick()
		}
	}
}

func (r *Router) heartbeatTick() {
	frame := domain.NewHeartbeatFrame()
	now := time.Now()
	for _, id := range r.pool.IDs() {
		if r.Send(id, frame) {
			r.pool.Touch(id, now)
		}
	}
}

func (r *Router) cleanupLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanupTick()
		}
	}
}

func (r *Router) cleanupTick() {
	now := time.Now()
	for _, id := range r.pool.IdleIDs(now, r.cfg.ConnectionTimeout) {
		r.Disconnect(id, "connection_timeout")
	}
}
