package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/haldis/webchat/internal/config"
	"github.com/haldis/webchat/internal/relay"
	"github.com/haldis/webchat/internal/session"
)

// imageRateLimit bounds how often one browser session may start an image
// generation. Generations are slow and billed per call.
const (
	imageRateInterval = 10 * time.Second
	imageRateBurst    = 3
)

// Defaults are the relay parameters applied to every new browser session.
type Defaults struct {
	Model         string
	ImageModel    string
	Instructions  string
	WebSearch     bool
	PartialImages int
}

// BrowserSession tracks one browser chat session and its conversation state.
type BrowserSession struct {
	ID           string
	Conv         relay.Conversation
	EventBuf     []WireEvent
	NextSeq      int64
	LastActiveAt time.Time

	mu           sync.Mutex
	conn         *websocket.Conn
	cancelStream context.CancelFunc
	busy         bool
	resetGen     int64 // bumped by reset; stale streams must not commit

	lastImage         []byte
	lastImageFallback bool
	imageLimiter      *rate.Limiter
}

// SessionManager manages active browser sessions and relays their traffic.
type SessionManager struct {
	sessions map[string]*BrowserSession
	mu       sync.RWMutex

	cfg      config.ServeConfig
	defaults Defaults
	text     *relay.TextRelay
	image    *relay.ImageRelay
	store    *session.Store // nil disables persistence
	log      zerolog.Logger
}

// NewSessionManager creates a session manager. store may be nil.
func NewSessionManager(cfg config.ServeConfig, defaults Defaults, text *relay.TextRelay, image *relay.ImageRelay, store *session.Store, log zerolog.Logger) *SessionManager {
	defaults.PartialImages = relay.ClampPartials(defaults.PartialImages)
	return &SessionManager{
		sessions: make(map[string]*BrowserSession),
		cfg:      cfg,
		defaults: defaults,
		text:     text,
		image:    image,
		store:    store,
		log:      log,
	}
}

// HTTPHandler returns an http.Handler for the page and chat endpoints.
func (m *SessionManager) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handlePage)
	mux.HandleFunc("/chat/sessions", m.auth(m.handleListSessions))
	mux.HandleFunc("/chat/sessions/new", m.auth(m.handleNewSession))
	mux.HandleFunc("/chat/sessions/", m.auth(m.handleSessionPath))
	return mux
}

// StartGC starts background GC for inactive sessions.
func (m *SessionManager) StartGC(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.gcSessions()
		case <-ctx.Done():
			return
		}
	}
}

func (m *SessionManager) gcSessions() {
	cutoff := time.Now().Add(-30 * time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		inactive := sess.LastActiveAt.Before(cutoff)
		streaming := sess.cancelStream != nil
		connected := sess.conn != nil
		sess.mu.Unlock()
		if inactive && !streaming && !connected {
			delete(m.sessions, id)
			m.log.Debug().Str("session", id).Msg("gc: dropped inactive session")
		}
	}
}

func (m *SessionManager) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]map[string]any, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sess.mu.Lock()
		item := map[string]any{
			"id":          sess.ID,
			"turns":       sess.Conv.Len(),
			"last_active": sess.LastActiveAt.Format(time.RFC3339Nano),
		}
		sess.mu.Unlock()
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func (m *SessionManager) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conn, err := m.upgrade(w, r)
	if err != nil {
		return
	}

	sess := m.newSession(r.Context())
	m.log.Info().Str("session", sess.ID).Msg("new browser session")

	m.attachConn(sess, conn)
	m.sendSessionReady(sess, nil)
	m.runSessionLoop(sess)
}

// handleSessionPath dispatches /chat/sessions/{id} (resume over WebSocket)
// and /chat/sessions/{id}/image (download the last final image).
func (m *SessionManager) handleSessionPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/chat/sessions/"), "/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/image"); ok {
		m.handleDownloadImage(w, id)
		return
	}
	m.handleResumeSession(w, r, rest)
}

func (m *SessionManager) handleDownloadImage(w http.ResponseWriter, id string) {
	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	sess.mu.Lock()
	data := sess.lastImage
	sess.mu.Unlock()
	if len(data) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="generated.png"`)
	_, _ = w.Write(data)
}

func (m *SessionManager) handleResumeSession(w http.ResponseWriter, r *http.Request, id string) {
	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := m.upgrade(w, r)
	if err != nil {
		return
	}

	m.attachConn(sess, conn)

	since := int64(0)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if parsed, err := strconv.ParseInt(sinceStr, 10, 64); err == nil {
			since = parsed
		}
	}

	m.sendSessionReady(sess, func() *WireEvent {
		if since <= 0 {
			return nil
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		events := catchupEvents(sess.EventBuf, since)
		if len(events) == 0 {
			return nil
		}
		return &WireEvent{Seq: 0, Type: "catchup", Events: events}
	})

	m.runSessionLoop(sess)
}

// catchupEvents returns buffered events with Seq greater than since.
func catchupEvents(buf []WireEvent, since int64) []WireEvent {
	var events []WireEvent
	for _, evt := range buf {
		if evt.Seq > since {
			events = append(events, evt)
		}
	}
	return events
}

func (m *SessionManager) runSessionLoop(sess *BrowserSession) {
	readCh := make(chan ClientEvent)
	go func() {
		defer close(readCh)
		for {
			var ev ClientEvent
			if err := sess.conn.ReadJSON(&ev); err != nil {
				return
			}
			readCh <- ev
		}
	}()

	for ev := range readCh {
		sess.mu.Lock()
		sess.LastActiveAt = time.Now()
		sess.mu.Unlock()

		switch ev.Type {
		case "message":
			if strings.TrimSpace(ev.Text) == "" {
				continue
			}
			go m.startText(sess, ev.Text)
		case "generate_image":
			if strings.TrimSpace(ev.Prompt) == "" {
				continue
			}
			go m.startImage(sess, ev.Prompt, ev.Partials)
		case "interrupt":
			m.interruptStream(sess)
		case "reset":
			m.resetSession(sess)
		}
	}

	m.detachConn(sess)
}

func (m *SessionManager) interruptStream(sess *BrowserSession) {
	sess.mu.Lock()
	cancel := sess.cancelStream
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *SessionManager) resetSession(sess *BrowserSession) {
	m.interruptStream(sess)
	sess.mu.Lock()
	sess.resetGen++
	sess.Conv.Reset()
	sess.EventBuf = nil
	sess.NextSeq = 1
	sess.lastImage = nil
	sess.lastImageFallback = false
	sess.mu.Unlock()

	if m.store != nil {
		if err := m.store.Clear(context.Background(), sess.ID); err != nil {
			m.log.Warn().Err(err).Str("session", sess.ID).Msg("clear stored session")
		}
	}
	m.writeStreamEvent(sess, WireEvent{Type: "reset_done"})
}

// staleSince reports whether the session was reset after gen was captured.
func (m *SessionManager) staleSince(sess *BrowserSession, gen int64) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.resetGen != gen
}

// acquireStream marks the session busy. Returns false if a stream is
// already in flight; only one remote call runs per session at a time.
func (m *SessionManager) acquireStream(sess *BrowserSession) (context.Context, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.busy {
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.busy = true
	sess.cancelStream = cancel
	return ctx, true
}

func (m *SessionManager) releaseStream(sess *BrowserSession) {
	sess.mu.Lock()
	if sess.cancelStream != nil {
		sess.cancelStream()
	}
	sess.cancelStream = nil
	sess.busy = false
	sess.mu.Unlock()
}

func (m *SessionManager) startText(sess *BrowserSession, text string) {
	ctx, ok := m.acquireStream(sess)
	if !ok {
		m.writeError(sess, "a request is already in progress")
		return
	}
	defer m.releaseStream(sess)

	req := relay.TextRequest{
		Model:        m.defaults.Model,
		Instructions: m.defaults.Instructions,
		Input:        text,
		WebSearch:    m.defaults.WebSearch,
	}

	// Send runs against a detached copy of the conversation; the shared
	// state is only touched under sess.mu, and only if no reset intervened
	// while the stream was in flight.
	sess.mu.Lock()
	gen := sess.resetGen
	conv := relay.Conversation{Turns: sess.Conv.Snapshot(), LastResponseID: sess.Conv.LastResponseID}
	sess.mu.Unlock()

	mark := conv.Len()
	prevLen := 0
	out, err := m.text.Send(ctx, req, &conv, func(acc string) {
		if len(acc) <= prevLen {
			return
		}
		delta := acc[prevLen:]
		prevLen = len(acc)
		if m.staleSince(sess, gen) {
			return
		}
		m.writeStreamEvent(sess, WireEvent{Type: "text_delta", Text: delta})
	})
	if err != nil {
		m.log.Warn().Err(err).Str("session", sess.ID).Msg("text relay failed")
		m.writeError(sess, fmt.Sprintf("OpenAI error: %v", err))
		return
	}
	if out == "" {
		m.writeStreamEvent(sess, WireEvent{Type: "notice", Message: "No response produced."})
		return
	}

	sess.mu.Lock()
	stale := sess.resetGen != gen
	if !stale {
		sess.Conv = conv
	}
	sess.mu.Unlock()
	if stale {
		// The session was reset mid-stream; the exchange is discarded.
		m.log.Debug().Str("session", sess.ID).Msg("dropping exchange completed after reset")
		return
	}

	m.writeStreamEvent(sess, WireEvent{Type: "message_done", Text: out})
	m.persistTurns(sess, conv, mark)
}

// persistTurns stores the turns appended since mark plus the updated
// response id.
func (m *SessionManager) persistTurns(sess *BrowserSession, conv relay.Conversation, mark int) {
	if m.store == nil {
		return
	}
	ctx := context.Background()
	turns := conv.Turns
	lastID := conv.LastResponseID
	if mark > len(turns) {
		return
	}
	if err := m.store.AppendTurns(ctx, sess.ID, turns[mark:]); err != nil {
		m.log.Warn().Err(err).Str("session", sess.ID).Msg("persist turns")
		return
	}
	if err := m.store.SetLastResponseID(ctx, sess.ID, lastID); err != nil {
		m.log.Warn().Err(err).Str("session", sess.ID).Msg("persist response id")
	}
}

func (m *SessionManager) startImage(sess *BrowserSession, prompt string, partials int) {
	sess.mu.Lock()
	limiter := sess.imageLimiter
	sess.mu.Unlock()
	if limiter != nil && !limiter.Allow() {
		m.writeError(sess, "image generation rate limited; wait a moment and retry")
		return
	}

	ctx, ok := m.acquireStream(sess)
	if !ok {
		m.writeError(sess, "a request is already in progress")
		return
	}
	defer m.releaseStream(sess)

	req := relay.ImageRequest{
		Model:         m.defaults.ImageModel,
		Prompt:        prompt,
		PartialImages: partials,
	}

	sess.mu.Lock()
	gen := sess.resetGen
	sess.mu.Unlock()

	result, err := m.image.Generate(ctx, req, func(frame relay.Frame) {
		if m.staleSince(sess, gen) {
			return
		}
		b64 := base64.StdEncoding.EncodeToString(frame.Data)
		if frame.Final {
			m.writeStreamEvent(sess, WireEvent{Type: "image_final", B64: b64, Fallback: frame.Fallback})
			return
		}
		m.writeStreamEvent(sess, WireEvent{Type: "image_partial", B64: b64, Index: frame.Index})
	})
	if err != nil {
		m.log.Warn().Err(err).Str("session", sess.ID).Msg("image relay failed")
		m.writeError(sess, fmt.Sprintf("Image generation error: %v", err))
		return
	}
	if result == nil {
		m.writeStreamEvent(sess, WireEvent{Type: "notice", Message: "No image bytes received. Try again."})
		return
	}

	sess.mu.Lock()
	stale := sess.resetGen != gen
	if !stale {
		sess.lastImage = result.Data
		sess.lastImageFallback = result.Fallback
	}
	sess.mu.Unlock()
	if stale {
		return
	}
	m.writeStreamEvent(sess, WireEvent{Type: "image_done", Fallback: result.Fallback})
}

func (m *SessionManager) newSession(ctx context.Context) *BrowserSession {
	sess := &BrowserSession{
		ID:           uuid.NewString(),
		NextSeq:      1,
		LastActiveAt: time.Now(),
		imageLimiter: rate.NewLimiter(rate.Every(imageRateInterval), imageRateBurst),
	}

	if m.store != nil {
		err := m.store.Create(ctx, &session.Session{ID: sess.ID, Model: m.defaults.Model})
		if err != nil {
			m.log.Warn().Err(err).Str("session", sess.ID).Msg("create stored session")
		}
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

func (m *SessionManager) attachConn(sess *BrowserSession, conn *websocket.Conn) {
	sess.mu.Lock()
	sess.conn = conn
	sess.LastActiveAt = time.Now()
	sess.mu.Unlock()
}

func (m *SessionManager) detachConn(sess *BrowserSession) {
	sess.mu.Lock()
	if sess.conn != nil {
		_ = sess.conn.Close()
	}
	sess.conn = nil
	sess.mu.Unlock()
}

func (m *SessionManager) sendSessionReady(sess *BrowserSession, catchup func() *WireEvent) {
	sess.mu.Lock()
	history := make([]HistoryItem, 0, sess.Conv.Len())
	for _, turn := range sess.Conv.Turns {
		history = append(history, HistoryItem{Role: string(turn.Role), Text: turn.Content})
	}
	sess.mu.Unlock()

	_ = writeEvent(sess.conn, WireEvent{Seq: 0, Type: "session_ready", SessionID: sess.ID, History: history})
	if catchup != nil {
		if ev := catchup(); ev != nil {
			_ = writeEvent(sess.conn, *ev)
		}
	}
}

func (m *SessionManager) writeStreamEvent(sess *BrowserSession, ev WireEvent) {
	sess.mu.Lock()
	seq := sess.NextSeq
	sess.NextSeq++
	ev.Seq = seq
	sess.EventBuf = append(sess.EventBuf, ev)
	conn := sess.conn
	sess.mu.Unlock()

	if conn != nil {
		_ = writeEvent(conn, ev)
	}
}

func (m *SessionManager) writeError(sess *BrowserSession, message string) {
	m.writeStreamEvent(sess, WireEvent{Type: "error", Message: message})
}

func (m *SessionManager) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (m *SessionManager) authorized(r *http.Request) bool {
	token := strings.TrimSpace(m.cfg.Token)
	if token == "" {
		return true
	}
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(value, prefix)) == token
}

func (m *SessionManager) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return upgrader.Upgrade(w, r, nil)
}

func writeEvent(conn *websocket.Conn, e WireEvent) error {
	if conn == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
