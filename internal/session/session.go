// Package session implements the per-client object store: an optimistic
// mutation engine over the board's object set. Local mutations apply to the
// in-memory working copy first, broadcast to peers second, and persist third;
// persistence failures roll the optimistic change back.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	"go.uber.org/zap"
)

var (
	errMissingRelay   = errors.New("relay is required")
	errMissingGateway = errors.New("gateway is required")
	noOpLogger        = zap.NewNop()

	// ErrUnknownObject indicates a mutation against an id absent from the
	// local working copy.
	ErrUnknownObject = errors.New("session: unknown object")
	// ErrSessionClosed indicates a mutation after Close.
	ErrSessionClosed = errors.New("session: closed")
)

const (
	opSessionNew  = "session.new"
	opLoad        = "session.load"
	opCreate      = "session.create"
	opUpdate      = "session.update"
	opDelete      = "session.delete"
	opRemoteApply = "session.remote_apply"
	opPersist     = "session.persist"

	persistQueueDepth = 64
)

// Gateway is the durable side of the session. *store.Store satisfies it.
type Gateway interface {
	LoadAll(ctx context.Context, boardID board.BoardID) ([]board.BoardObject, error)
	Insert(ctx context.Context, object board.BoardObject) (board.BoardObject, error)
	UpdateFields(ctx context.Context, objectID board.ObjectID, patch board.ObjectPatch) error
	DeleteByID(ctx context.Context, objectID board.ObjectID) error
}

// Config describes the dependencies a Session requires.
type Config struct {
	BoardID board.BoardID
	UserID  board.UserID
	Relay   transport.Relay
	Gateway Gateway
	// TempIDs mints temporary identifiers; defaults to the prefixed UUID provider.
	TempIDs board.IDProvider
	Clock   func() time.Time
	Logger  *zap.Logger
	// OnError receives surfaced persistence failures after rollback has run.
	OnError func(error)
	// OnChange fires after every change to the working copy, local or remote.
	OnChange func()
}

// mutationState tracks a pending mutation through its lifecycle.
type mutationState int

const (
	mutationAppliedLocally mutationState = iota
	mutationAwaitingPersist
	mutationConfirmed
	mutationRolledBack
)

type jobKind int

const (
	jobInsert jobKind = iota
	jobUpdate
	jobDelete
)

// persistJob is one queued write for the persistence worker. The worker's
// completion handling is the only place rollback and reconciliation run.
type persistJob struct {
	kind     jobKind
	state    mutationState
	tempID   board.ObjectID
	objectID board.ObjectID
	object   board.BoardObject
	patch    board.ObjectPatch
	snapshot board.BoardObject
}

// Session is one client's working copy of a board.
type Session struct {
	boardID board.BoardID
	userID  board.UserID

	objects  transport.Channel
	gateway  Gateway
	tempIDs  board.IDProvider
	clock    func() time.Time
	logger   *zap.Logger
	onError  func(error)
	onChange func()

	mu    sync.Mutex
	cache *objectCache
	// pendingCreates holds temp ids whose insert has not resolved yet;
	// canceledCreates marks those deleted before the insert came back.
	pendingCreates  map[board.ObjectID]bool
	canceledCreates map[board.ObjectID]bool
	closed          bool

	jobs        chan persistJob
	jobsPending sync.WaitGroup
	workerDone  chan struct{}

	cancelSubscribe func()
}

// New opens the board's object channel and starts the persistence worker.
func New(cfg Config) (*Session, error) {
	if cfg.Relay == nil {
		return nil, fmt.Errorf("%s: %w", opSessionNew, errMissingRelay)
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("%s: %w", opSessionNew, errMissingGateway)
	}
	tempIDs := cfg.TempIDs
	if tempIDs == nil {
		tempIDs = board.NewTempIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	channel, err := cfg.Relay.OpenChannel(cfg.BoardID, transport.KindObjects)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opSessionNew, err)
	}

	session := &Session{
		boardID:         cfg.BoardID,
		userID:          cfg.UserID,
		objects:         channel,
		gateway:         cfg.Gateway,
		tempIDs:         tempIDs,
		clock:           clock,
		logger:          logger,
		onError:         cfg.OnError,
		onChange:        cfg.OnChange,
		cache:           newObjectCache(),
		pendingCreates:  make(map[board.ObjectID]bool),
		canceledCreates: make(map[board.ObjectID]bool),
		jobs:            make(chan persistJob, persistQueueDepth),
		workerDone:      make(chan struct{}),
	}
	session.cancelSubscribe = channel.Subscribe(session.handleFrame)
	go session.persistWorker()
	return session, nil
}

// Load replaces the working copy with the durable object set, ordered by
// ascending z_index. Called once at board-open time and again after a
// reconnect; there is no incremental catch-up.
func (s *Session) Load(ctx context.Context) error {
	objects, err := s.gateway.LoadAll(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("%s: %w", opLoad, err)
	}
	s.mu.Lock()
	s.cache.reset(objects)
	s.mu.Unlock()
	s.notifyChange()
	return nil
}

// Objects returns the working copy in insertion order.
func (s *Session) Objects() []board.BoardObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.list()
}

// Object returns one object by id.
func (s *Session) Object(id board.ObjectID) (board.BoardObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.get(id)
}

// Connected reports the object channel's subscription status. It drives the
// user-visible connectivity indicator.
func (s *Session) Connected() bool {
	return s.objects.Connected()
}

// OnStatusChange observes connectivity transitions of the object channel.
func (s *Session) OnStatusChange(handler transport.StatusHandler) (cancel func()) {
	return s.objects.OnStatusChange(handler)
}

// Create inserts the object into the working copy under a temporary id,
// broadcasts it, and queues the durable insert. The returned object carries
// the temporary id the caller can render immediately.
func (s *Session) Create(ctx context.Context, object board.BoardObject) (board.BoardObject, error) {
	now := s.clock().UTC()
	if object.ID == "" {
		tempID, err := s.tempIDs.NewID()
		if err != nil {
			return board.BoardObject{}, fmt.Errorf("%s: %w", opCreate, err)
		}
		object.ID = tempID
	}
	object.BoardID = s.boardID
	if object.CreatedBy == "" {
		object.CreatedBy = s.userID
	}
	object.CreatedAt = now
	object.UpdatedAt = now

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return board.BoardObject{}, ErrSessionClosed
	}
	if !s.cache.insert(object) {
		s.mu.Unlock()
		return board.BoardObject{}, fmt.Errorf("%s: duplicate id %s", opCreate, object.ID)
	}
	s.pendingCreates[object.ID] = true
	s.mu.Unlock()
	s.notifyChange()

	wire, err := board.EncodeObject(object)
	if err == nil {
		s.publish(ctx, board.EventCreated, board.CreatedEvent{Object: wire})
	} else {
		s.logger.Warn("create broadcast skipped", zap.Error(err))
	}

	s.enqueue(persistJob{
		kind:   jobInsert,
		state:  mutationAppliedLocally,
		tempID: object.ID,
		object: object,
	})
	return object, nil
}

// Update merges the patch into the cached object, broadcasts the changed
// fields, and queues a partial durable write. Updates against a temporary id
// broadcast but skip persistence entirely; there is no row to write yet.
func (s *Session) Update(ctx context.Context, id board.ObjectID, patch board.ObjectPatch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	snapshot, ok := s.cache.get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w: %s", opUpdate, ErrUnknownObject, id)
	}
	merged := patch.Apply(snapshot)
	merged.UpdatedAt = s.clock().UTC()
	s.cache.set(id, merged)
	s.mu.Unlock()
	s.notifyChange()

	s.publish(ctx, board.EventUpdated, board.UpdatedEvent{ID: id.String(), Fields: patch})

	if id.Temporary() {
		return nil
	}
	s.enqueue(persistJob{
		kind:     jobUpdate,
		state:    mutationAppliedLocally,
		objectID: id,
		patch:    patch,
		snapshot: snapshot,
	})
	return nil
}

// Delete removes the object locally, broadcasts the removal, and queues the
// durable delete for durable ids. A durable delete failure is logged but
// never rolled back: re-appearing a deleted object is worse than a rare leak.
func (s *Session) Delete(ctx context.Context, id board.ObjectID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.cache.remove(id) {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w: %s", opDelete, ErrUnknownObject, id)
	}
	if s.pendingCreates[id] {
		s.canceledCreates[id] = true
	}
	s.mu.Unlock()
	s.notifyChange()

	s.publish(ctx, board.EventDeleted, board.DeletedEvent{ID: id.String()})

	if id.Temporary() {
		return nil
	}
	s.enqueue(persistJob{
		kind:     jobDelete,
		state:    mutationAppliedLocally,
		objectID: id,
	})
	return nil
}

// Flush blocks until every queued persistence job has resolved.
func (s *Session) Flush() {
	s.jobsPending.Wait()
}

// Close stops the subscription and the persistence worker after draining
// queued writes, then closes the object channel.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelSubscribe()
	s.jobsPending.Wait()
	close(s.jobs)
	<-s.workerDone
	return s.objects.Close()
}

func (s *Session) enqueue(job persistJob) {
	job.state = mutationAwaitingPersist
	s.jobsPending.Add(1)
	s.jobs <- job
}

// persistWorker drains the job queue one write at a time, preserving the
// local order of a session's outgoing mutations.
func (s *Session) persistWorker() {
	defer close(s.workerDone)
	for job := range s.jobs {
		s.runJob(job)
		s.jobsPending.Done()
	}
}

func (s *Session) runJob(job persistJob) {
	ctx := context.Background()
	switch job.kind {
	case jobInsert:
		row, err := s.gateway.Insert(ctx, job.object)
		if err != nil {
			job.state = mutationRolledBack
			s.rollbackCreate(job.tempID, err)
			return
		}
		job.state = mutationConfirmed
		s.reconcileCreate(ctx, job.tempID, row)
	case jobUpdate:
		if err := s.gateway.UpdateFields(ctx, job.objectID, job.patch); err != nil {
			job.state = mutationRolledBack
			s.rollbackUpdate(job.objectID, job.snapshot, err)
			return
		}
		job.state = mutationConfirmed
	case jobDelete:
		if err := s.gateway.DeleteByID(ctx, job.objectID); err != nil {
			// Local removal is already final; the row leaks rather than
			// resurrecting a deleted object.
			s.logger.Warn("durable delete failed",
				zap.String("operation", opPersist),
				zap.String("object_id", job.objectID.String()),
				zap.Error(err))
			return
		}
		job.state = mutationConfirmed
	}
}

// reconcileCreate retires the temporary id: the stored row replaces the
// optimistic object in place and the mapping is broadcast so peers converge.
// If the object was deleted before the insert resolved, the freshly written
// row is deleted again and no mapping goes out.
func (s *Session) reconcileCreate(ctx context.Context, tempID board.ObjectID, row board.BoardObject) {
	s.mu.Lock()
	delete(s.pendingCreates, tempID)
	canceled := s.canceledCreates[tempID]
	delete(s.canceledCreates, tempID)
	replaced := false
	if !canceled {
		replaced = s.cache.replace(tempID, row)
	}
	s.mu.Unlock()

	if canceled || !replaced {
		if err := s.gateway.DeleteByID(ctx, row.ID); err != nil {
			s.logger.Warn("compensating delete failed",
				zap.String("operation", opPersist),
				zap.String("object_id", row.ID.String()),
				zap.Error(err))
		}
		return
	}
	s.notifyChange()

	wire, err := board.EncodeObject(row)
	if err != nil {
		s.logger.Warn("id_replaced broadcast skipped", zap.Error(err))
		return
	}
	s.publish(ctx, board.EventIDReplaced, board.IDReplacedEvent{
		TempID:     tempID.String(),
		RealID:     row.ID.String(),
		RealObject: wire,
	})
}

func (s *Session) rollbackCreate(tempID board.ObjectID, cause error) {
	s.mu.Lock()
	delete(s.pendingCreates, tempID)
	delete(s.canceledCreates, tempID)
	removed := s.cache.remove(tempID)
	s.mu.Unlock()
	if removed {
		s.notifyChange()
	}
	s.surfaceError(fmt.Errorf("%s: insert %s: %w", opPersist, tempID, cause))
}

func (s *Session) rollbackUpdate(id board.ObjectID, snapshot board.BoardObject, cause error) {
	s.mu.Lock()
	// A local delete that raced the failed write wins over the restore.
	restored := s.cache.set(id, snapshot)
	s.mu.Unlock()
	if restored {
		s.notifyChange()
	}
	s.surfaceError(fmt.Errorf("%s: update %s: %w", opPersist, id, cause))
}

func (s *Session) publish(ctx context.Context, eventType board.EventType, payload any) {
	frame, err := board.EncodeEvent(eventType, payload)
	if err != nil {
		s.logger.Warn("event encode failed",
			zap.String("event", string(eventType)), zap.Error(err))
		return
	}
	if err := s.objects.Publish(ctx, frame); err != nil {
		// Broadcasts are best effort; peers heal on their next full load.
		s.logger.Debug("event publish dropped",
			zap.String("event", string(eventType)), zap.Error(err))
	}
}

func (s *Session) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Session) surfaceError(err error) {
	s.logger.Error("persistence failure surfaced", zap.Error(err))
	if s.onError != nil {
		s.onError(err)
	}
}
