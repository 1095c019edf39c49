package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"courierchat/internal/errors"
	"courierchat/internal/metrics"
	"courierchat/internal/models"
	"courierchat/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Backend is the persisted message store behind the hosted API.
type Backend interface {
	FetchHistory(ctx context.Context, userA, userB string) ([]models.Message, error)
	InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error
	SoftDelete(ctx context.Context, id string) error
}

// Feed is the realtime change feed for one conversation. Subscribe returns
// the event sink the session drains; the channel closes when the feed enters
// an error state, at which point the session falls back to polling.
type Feed interface {
	Subscribe(ctx context.Context, userID, peerID string) (<-chan models.ChatEvent, error)
	SendTyping(ctx context.Context, userID string, isTyping bool) error
	Close() error
}

// Uploader stores media bytes and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// HistoryCache is the local conversation cache. Optional; a nil cache is
// skipped.
type HistoryCache interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error)
	UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error
	Tombstone(ctx context.Context, id string, deletedAt time.Time) error
}

// TokenVerifier checks the session token and yields the authenticated user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// SessionOptions wires a Session to its collaborators.
type SessionOptions struct {
	Backend          Backend
	Feed             Feed
	Uploader         Uploader
	Cache            HistoryCache
	Verifier         TokenVerifier
	Token            string
	PeerID           string
	TypingIdle       time.Duration
	PeerTypingExpiry time.Duration
	PollInterval     time.Duration
	Logger           *logrus.Logger
}

// Session owns the message store for one open conversation. It acquires the
// realtime subscription on Start and releases it unconditionally on Close, so
// no event is ever delivered into a disposed store.
type Session struct {
	opts       SessionOptions
	logger     *logrus.Logger
	errLogger  *errors.Logger
	store      *Store
	userID     string
	notifier   *TypingNotifier
	peerTyping *PeerTyping

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Backend == nil || opts.Feed == nil || opts.Verifier == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "session requires backend, feed and verifier")
	}
	if opts.PeerID == "" {
		return nil, errors.NewValidationError("peer_id", "", "peer id is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = 2 * time.Second
	}
	if opts.PeerTypingExpiry <= 0 {
		opts.PeerTypingExpiry = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}

	return &Session{
		opts:       opts,
		logger:     opts.Logger,
		errLogger:  errors.NewLogger(),
		store:      NewStore(),
		peerTyping: NewPeerTyping(opts.PeerTypingExpiry),
	}, nil
}

// Start authenticates the session, loads history and acquires the realtime
// subscription. A history fetch failure is reported but leaves the session
// running over an empty store; a subscription failure degrades to polling.
func (s *Session) Start(ctx context.Context) error {
	userID, err := s.opts.Verifier.Verify(s.opts.Token)
	if err != nil {
		return errors.NewAuthError("invalid session token")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeInvalidInput, "session already started")
	}
	s.started = true
	s.userID = userID
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.notifier = NewTypingNotifier(s.opts.Feed, userID, s.opts.TypingIdle, s.logger)

	if err := s.loadHistory(runCtx); err != nil {
		s.logger.WithError(err).WithField("peer", s.opts.PeerID).Warn("History fetch failed, starting with cached or empty conversation")
	}

	events, err := s.opts.Feed.Subscribe(runCtx, userID, s.opts.PeerID)
	if err != nil {
		s.logger.WithError(err).Warn("Realtime subscription failed, falling back to polling")
		metrics.IncrementCounter("realtime_subscribe_failures_total", nil)
		s.wg.Add(1)
		go s.pollLoop(runCtx)
		return nil
	}

	s.wg.Add(1)
	go s.drainEvents(runCtx, events)
	return nil
}

// Close tears the session down: subscription, typing timer, event drain. It
// is safe to call on error paths and more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Stop()
	}
	if cancel != nil {
		cancel()
	}
	err := s.opts.Feed.Close()
	s.wg.Wait()
	return err
}

func (s *Session) loadHistory(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "session.load_history",
		attribute.String("peer_id", s.opts.PeerID))
	defer span.End()

	history, err := s.opts.Backend.FetchHistory(ctx, s.userID, s.opts.PeerID)
	if err != nil {
		if cached, cacheErr := s.cachedHistory(ctx); cacheErr == nil && cached != nil {
			s.store.LoadHistory(cached)
		}
		return errors.Wrap(err, errors.ErrCodeBackendAPI, "history fetch failed")
	}

	s.store.LoadHistory(history)
	for i := range history {
		s.cacheSave(ctx, &history[i])
	}
	metrics.IncrementCounter("history_loads_total", nil)
	return nil
}

func (s *Session) cachedHistory(ctx context.Context) ([]models.Message, error) {
	if s.opts.Cache == nil {
		return nil, nil
	}
	return s.opts.Cache.GetConversation(ctx, s.userID, s.opts.PeerID)
}

func (s *Session) cacheSave(ctx context.Context, msg *models.Message) {
	if s.opts.Cache == nil || msg.Ref.Server == "" {
		return
	}
	if err := s.opts.Cache.SaveMessage(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("message", msg.Ref.String()).Warn("Failed to cache message")
	}
}

func (s *Session) drainEvents(ctx context.Context, events <-chan models.ChatEvent) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				// Feed error state: recover by polling instead of
				// failing silently.
				s.logger.WithField("peer", s.opts.PeerID).Warn("Realtime feed closed, falling back to polling")
				metrics.IncrementCounter("realtime_feed_failures_total", nil)
				s.wg.Add(1)
				go s.pollLoop(ctx)
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev models.ChatEvent) {
	switch ev.Kind {
	case models.EventInsert, models.EventUpdate:
		if ev.Message == nil {
			return
		}
		inserted := s.store.IngestRemote(*ev.Message)
		if inserted {
			metrics.IncrementCounter("messages_ingested_total", nil)
		} else {
			metrics.IncrementCounter("duplicate_echoes_suppressed_total", nil)
		}
		s.cacheSave(ctx, ev.Message)
	case models.EventTyping:
		if ev.Typing == nil || ev.Typing.UserID != s.opts.PeerID {
			return
		}
		s.peerTyping.Observe(ev.Typing.IsTyping)
	default:
		s.logger.WithField("kind", ev.Kind).Debug("Ignoring unknown event kind")
	}
}

// pollLoop refreshes history at a fixed interval while the realtime feed is
// unavailable.
func (s *Session) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.loadHistory(ctx); err != nil {
				s.logger.WithError(err).Debug("Polling refresh failed")
			}
			metrics.IncrementCounter("polling_refreshes_total", nil)
		}
	}
}

// guard authenticates a mutating operation. Every mutating flow checks the
// session token first so an expired session surfaces as a re-authenticate
// prompt instead of a confusing send failure.
func (s *Session) guard() error {
	if _, err := s.opts.Verifier.Verify(s.opts.Token); err != nil {
		return errors.NewAuthError("session token rejected")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return errors.New(errors.ErrCodeInvalidInput, "session is not active")
	}
	return nil
}

// SendText sends a text message. The optimistic entry appears in the store
// before the network write starts, so user-action order fixes display order
// regardless of completion order.
func (s *Session) SendText(ctx context.Context, content, replyTo string) (models.Message, error) {
	if err := s.guard(); err != nil {
		return models.Message{}, err
	}
	if content == "" {
		return models.Message{}, errors.NewValidationError("content", "", "text message must not be empty")
	}

	draft := models.Draft{Type: models.TextMessage, Content: content, ReplyTo: replyTo}
	msg := s.store.AppendOptimistic(draft, s.userID, s.opts.PeerID, time.Now())
	return s.deliver(ctx, msg)
}

// SendImage uploads the image first and only then inserts the message, so a
// failed upload can never leave an orphan message row.
func (s *Session) SendImage(ctx context.Context, data []byte, contentType string, meta *models.MediaMetadata) (models.Message, error) {
	return s.sendMedia(ctx, models.ImageMessage, data, contentType, meta)
}

// SendAudio behaves like SendImage for audio clips.
func (s *Session) SendAudio(ctx context.Context, data []byte, contentType string, meta *models.MediaMetadata) (models.Message, error) {
	return s.sendMedia(ctx, models.AudioMessage, data, contentType, meta)
}

func (s *Session) sendMedia(ctx context.Context, mediaType models.MessageType, data []byte, contentType string, meta *models.MediaMetadata) (models.Message, error) {
	if err := s.guard(); err != nil {
		return models.Message{}, err
	}
	if s.opts.Uploader == nil {
		return models.Message{}, errors.New(errors.ErrCodeInvalidInput, "no uploader configured")
	}
	if len(data) == 0 {
		return models.Message{}, errors.NewValidationError("media", "", "media payload must not be empty")
	}

	url, err := s.opts.Uploader.Upload(ctx, data, contentType)
	if err != nil {
		metrics.IncrementCounter("media_upload_failures_total", nil)
		return models.Message{}, errors.NewMediaError("upload failed", err)
	}

	draft := models.Draft{Type: mediaType, Metadata: meta}
	switch mediaType {
	case models.ImageMessage:
		draft.ImageURL = url
	case models.AudioMessage:
		draft.AudioURL = url
	}

	msg := s.store.AppendOptimistic(draft, s.userID, s.opts.PeerID, time.Now())
	return s.deliver(ctx, msg)
}

// deliver performs the network write for an optimistic entry and reconciles
// the result into the store.
func (s *Session) deliver(ctx context.Context, msg models.Message) (models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "session.deliver",
		attribute.String("message", msg.Ref.String()),
		attribute.String("type", string(msg.Type)))
	defer span.End()

	confirmed, err := s.opts.Backend.InsertMessage(ctx, msg)
	if err != nil {
		s.store.MarkFailed(msg.Ref.Local)
		metrics.IncrementCounter("message_send_failures_total", nil)
		s.errLogger.LogRetryableError(err, "Message send failed, kept for retry",
			logrus.Fields{"message": msg.Ref.String()})

		failed, _ := s.store.Get(msg.Ref)
		return failed, errors.Wrap(err, errors.ErrCodeBackendAPI, "message send failed")
	}

	s.store.Confirm(msg.Ref.Local, *confirmed)
	s.cacheSave(ctx, confirmed)
	metrics.IncrementCounter("messages_sent_total", nil)

	sent, _ := s.store.Get(confirmed.Ref)
	return sent, nil
}

// Retry re-attempts a failed send. The original idempotency key is reused so
// a slow-but-successful first attempt cannot produce a second persisted row.
func (s *Session) Retry(ctx context.Context, localID string) (models.Message, error) {
	if err := s.guard(); err != nil {
		return models.Message{}, err
	}

	msg, ok := s.store.Get(models.LocalRef(localID))
	if !ok {
		return models.Message{}, errors.NewNotFoundError("message", localID)
	}
	if msg.Status != models.StatusFailed {
		return models.Message{}, errors.NewValidationError("status", string(msg.Status), "only failed messages can be retried")
	}

	s.store.MarkSending(localID)
	metrics.IncrementCounter("message_retries_total", nil)
	return s.deliver(ctx, msg)
}

// MarkRead propagates a read receipt for the peer's message.
func (s *Session) MarkRead(ctx context.Context, serverID string) error {
	return s.updateStatus(ctx, serverID, models.StatusRead)
}

// MarkDelivered propagates a delivery receipt for the peer's message.
func (s *Session) MarkDelivered(ctx context.Context, serverID string) error {
	return s.updateStatus(ctx, serverID, models.StatusDelivered)
}

func (s *Session) updateStatus(ctx context.Context, serverID string, status models.MessageStatus) error {
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.opts.Backend.UpdateStatus(ctx, serverID, status); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendAPI, fmt.Sprintf("status update to %s failed", status))
	}

	s.store.ApplyStatusUpdate(serverID, status)
	if s.opts.Cache != nil {
		if err := s.opts.Cache.UpdateStatus(ctx, serverID, status); err != nil {
			s.logger.WithError(err).WithField("message", serverID).Warn("Failed to update cached status")
		}
	}
	return nil
}

// Delete soft-deletes one of the user's own messages. The row is never hard
// deleted; content is tombstoned and the type forced to text.
func (s *Session) Delete(ctx context.Context, serverID string) error {
	if err := s.guard(); err != nil {
		return err
	}

	msg, ok := s.store.Get(models.ServerRef(serverID))
	if !ok {
		return errors.NewNotFoundError("message", serverID)
	}
	if msg.SenderID != s.userID {
		return errors.NewValidationError("sender_id", msg.SenderID, "only own messages can be deleted")
	}

	if err := s.opts.Backend.SoftDelete(ctx, serverID); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendAPI, "delete failed")
	}

	deletedAt := time.Now()
	s.store.ApplyTombstone(serverID, deletedAt)
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Tombstone(ctx, serverID, deletedAt); err != nil {
			s.logger.WithError(err).WithField("message", serverID).Warn("Failed to tombstone cached message")
		}
	}
	metrics.IncrementCounter("messages_deleted_total", nil)
	return nil
}

// Typing records a keystroke for the debounced typing broadcast.
func (s *Session) Typing(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	s.notifier.Touch(ctx)
	metrics.IncrementCounter("typing_keystrokes_total", nil)
}

// PeerIsTyping reports the peer's advisory typing flag.
func (s *Session) PeerIsTyping() bool {
	return s.peerTyping.IsTyping()
}

// Messages returns the current conversation in display order.
func (s *Session) Messages() []models.Message {
	return s.store.Messages()
}

// Groups returns the conversation partitioned into calendar-day groups.
func (s *Session) Groups(loc *time.Location) []DateGroup {
	return GroupByDate(s.store.Messages(), loc)
}
