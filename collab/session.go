package collab

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/scene"
)

const (
	// ElementSyncInterval throttles outbound element syncs on the
	// collaborative path.
	ElementSyncInterval = 100 * time.Millisecond

	// PointerThrottleInterval throttles outbound pointer updates.
	// Faster than element sync and fully independent of it.
	PointerThrottleInterval = 50 * time.Millisecond

	// SaveDebounceInterval is the trailing debounce for the solo
	// (non-collaborative) direct-save path.
	SaveDebounceInterval = 1000 * time.Millisecond
)

// Backend is the slice of the service layer a session needs: the scene
// mutation gateway and the ephemeral presence channel.
type Backend interface {
	UpdateScene(ctx context.Context, canvasId, userId, data string, expectedVersion *int64) (int64, error)
	UpsertPresence(ctx context.Context, record models.PresenceRecord) error
	RemovePresence(ctx context.Context, canvasId, userId string) error
}

type State int

const (
	StateIdle State = iota
	StateJoining
	StateActive
	StateLeft
)

type Config struct {
	CanvasId string
	User     models.User

	// Collaborative selects between the throttled live-sync path and
	// the debounced direct-save path. The two are mutually exclusive
	// for the lifetime of a session.
	Collaborative bool

	Backend Backend
	Clock   Clock // nil means wall clock

	// OnDocumentChange receives the merged scene after every applied
	// remote update.
	OnDocumentChange func(models.ScenePayload)

	// OnPresenceChange receives the live map of other users' presence,
	// keyed by user id, after every presence event.
	OnPresenceChange func(map[string]Collaborator)
}

// Session orchestrates one open editor view: it throttles outbound
// element and pointer updates, reconciles inbound remote snapshots
// against the local element set, owns the session's presence record, and
// exposes the imperative save controls the host needs on navigation.
type Session struct {
	canvasId      string
	user          models.User
	color         string
	collaborative bool
	backend       Backend
	clock         Clock

	onDocumentChange func(models.ScenePayload)
	onPresenceChange func(map[string]Collaborator)

	elementSync  *Throttle
	pointerSync  *Throttle
	saveDebounce *Debounce
	tracker      *SaveTracker

	mu             sync.Mutex
	state          State
	elements       []models.Element
	files          map[string]models.BinaryFile
	appState       models.AppState
	lastRemote     string
	applyingRemote bool
	pointer        *models.Pointer
	selected       []string
	version        *int64
}

func NewSession(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Session{
		canvasId:         cfg.CanvasId,
		user:             cfg.User,
		color:            scene.ColorFor(cfg.User.Id),
		collaborative:    cfg.Collaborative,
		backend:          cfg.Backend,
		clock:            clock,
		onDocumentChange: cfg.OnDocumentChange,
		onPresenceChange: cfg.OnPresenceChange,
		elementSync:      NewThrottle(clock, ElementSyncInterval),
		pointerSync:      NewThrottle(clock, PointerThrottleInterval),
		saveDebounce:     NewDebounce(clock, SaveDebounceInterval),
		tracker:          NewSaveTracker(clock),
		state:            StateIdle,
		files:            make(map[string]models.BinaryFile),
	}
}

// Join loads the canvas snapshot into the session and, on the
// collaborative path, announces presence. Must be called before any
// change handling.
func (s *Session) Join(ctx context.Context, canvas models.Canvas) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return errors.New("session already joined")
	}
	s.state = StateJoining

	if payload, err := scene.DecodePayload(canvas.Data); err == nil {
		s.elements = payload.Elements
		s.appState = payload.AppState
		for id, f := range payload.Files {
			s.files[id] = f
		}
	}
	s.lastRemote = canvas.Data
	v := canvas.UpdatedAt
	s.version = &v
	s.tracker.Reset(canvas.Data)
	s.state = StateActive
	s.mu.Unlock()

	if s.collaborative {
		if err := s.backend.UpsertPresence(ctx, s.presenceRecord()); err != nil {
			return err
		}
	}
	return nil
}

// Collaborating reports whether this session is live-syncing with other
// editors.
func (s *Session) Collaborating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collaborative && s.state == StateActive
}

// UserColor is the deterministic cursor color assigned to this session's
// user.
func (s *Session) UserColor() string { return s.color }

// OnLocalChange records an editor change and schedules the outbound
// sync: throttled element sync when collaborating, debounced save
// otherwise. Changes arriving while a remote update is being applied are
// dropped so remote applies never echo back to the network.
func (s *Session) OnLocalChange(payload models.ScenePayload) {
	s.mu.Lock()
	if s.state != StateActive || s.applyingRemote {
		s.mu.Unlock()
		return
	}
	payload = scene.FilterFiles(payload)
	s.elements = payload.Elements
	s.appState = payload.AppState
	s.files = payload.Files
	collaborative := s.collaborative
	s.mu.Unlock()

	if collaborative {
		s.elementSync.Call(s.syncElements)
	} else {
		s.saveDebounce.Call(s.saveNow)
	}
}

// ApplyRemote handles a remote document snapshot: short-circuits if it
// is byte-identical to the last processed one, silently ignores
// malformed payloads, reconciles the rest against the local element set,
// merges unseen binary files, and hands the merged scene to the host.
func (s *Session) ApplyRemote(data string) {
	s.mu.Lock()
	if s.state != StateActive || !s.collaborative {
		s.mu.Unlock()
		return
	}
	if data == s.lastRemote {
		s.mu.Unlock()
		return
	}
	s.lastRemote = data

	payload, err := scene.DecodePayload(data)
	if err != nil {
		// Keep the last good local state rather than crash the editor.
		s.mu.Unlock()
		return
	}

	s.elements = scene.Reconcile(s.elements, payload.Elements)
	for id, f := range payload.Files {
		if _, ok := s.files[id]; !ok {
			s.files[id] = f
		}
	}

	out := models.ScenePayload{
		Elements: s.elements,
		AppState: s.appState,
		Files:    make(map[string]models.BinaryFile, len(s.files)),
	}
	for id, f := range s.files {
		out.Files[id] = f
	}

	s.applyingRemote = true
	cb := s.onDocumentChange
	s.mu.Unlock()

	if cb != nil {
		cb(out)
	}

	s.mu.Lock()
	s.applyingRemote = false
	s.mu.Unlock()
}

// ApplyPresence rebuilds the collaborators map from a presence snapshot,
// excluding this session's own record, and hands it to the host.
func (s *Session) ApplyPresence(records []models.PresenceRecord) {
	s.mu.Lock()
	if s.state != StateActive || !s.collaborative {
		s.mu.Unlock()
		return
	}
	cb := s.onPresenceChange
	s.mu.Unlock()
	if cb == nil {
		return
	}

	now := s.clock.Now().UnixMilli()
	others := make(map[string]Collaborator)
	for _, r := range records {
		if r.UserId == s.user.Id {
			continue
		}
		others[r.UserId] = Collaborator{
			UserId:             r.UserId,
			UserName:           r.UserName,
			Color:              r.UserColor,
			Pointer:            r.Pointer,
			SelectedElementIds: r.SelectedElementIds,
			IsIdle:             IsIdle(r.LastSeen, now),
		}
	}
	cb(others)
}

// SubmitPointerUpdate schedules a throttled presence refresh carrying
// the freshest pointer position and selection.
func (s *Session) SubmitPointerUpdate(pointer models.Pointer, selectedElementIds []string) {
	s.mu.Lock()
	if s.state != StateActive || !s.collaborative {
		s.mu.Unlock()
		return
	}
	p := pointer
	s.pointer = &p
	s.selected = selectedElementIds
	s.mu.Unlock()

	s.pointerSync.Call(s.sendPresence)
}

// FlushPendingSave runs any pending debounced save immediately. Used on
// tab close and navigation away.
func (s *Session) FlushPendingSave() {
	s.saveDebounce.Flush()
}

// HasPendingSave reports whether a debounced save is currently scheduled.
func (s *Session) HasPendingSave() bool {
	return s.saveDebounce.Pending()
}

// LastSavedAt returns the time of the last confirmed save this session,
// or nil if none yet.
func (s *Session) LastSavedAt() *time.Time {
	return s.tracker.LastSavedAt()
}

// BlocksNavigation reports whether leaving now would lose work: a save
// is pending and at least one save has completed this session. A freshly
// loaded, never-dirtied document does not block navigation.
func (s *Session) BlocksNavigation() bool {
	return s.HasPendingSave() && s.tracker.LastSavedAt() != nil
}

// Leave tears the session down: cancels every pending timer and removes
// this session's presence record. No network activity originates from
// the session afterwards. Idempotent.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateLeft {
		s.mu.Unlock()
		return
	}
	s.state = StateLeft
	s.mu.Unlock()

	s.elementSync.Stop()
	s.pointerSync.Stop()
	s.saveDebounce.Stop()

	if s.collaborative {
		if err := s.backend.RemovePresence(ctx, s.canvasId, s.user.Id); err != nil {
			log.Printf("Failed to remove presence for user %s on canvas %s: %v", s.user.Id, s.canvasId, err)
		}
	}
}

func (s *Session) presenceRecord() models.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.PresenceRecord{
		CanvasId:           s.canvasId,
		UserId:             s.user.Id,
		UserName:           s.user.Username,
		UserColor:          s.color,
		Pointer:            s.pointer,
		SelectedElementIds: s.selected,
	}
}

func (s *Session) sendPresence() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.backend.UpsertPresence(context.Background(), s.presenceRecord()); err != nil {
		// A missed heartbeat just ages the record toward staleness;
		// the purge sweep is the backstop.
		log.Printf("Presence update failed for user %s on canvas %s: %v", s.user.Id, s.canvasId, err)
	}
}

func (s *Session) syncElements() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	payload := models.ScenePayload{Elements: s.elements, AppState: s.appState, Files: s.files}
	s.mu.Unlock()

	data, err := scene.EncodePayload(payload)
	if err != nil {
		log.Printf("Failed to encode scene for canvas %s: %v", s.canvasId, err)
		return
	}

	updatedAt, err := s.backend.UpdateScene(context.Background(), s.canvasId, s.user.Id, data, nil)
	if err != nil {
		log.Printf("Element sync failed for canvas %s: %v", s.canvasId, err)
		return
	}

	s.mu.Lock()
	// Our own write echoing back through the subscription is now a
	// no-op string match.
	s.lastRemote = data
	s.version = &updatedAt
	s.mu.Unlock()
}

func (s *Session) saveNow() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	payload := models.ScenePayload{Elements: s.elements, AppState: s.appState, Files: s.files}
	var expected *int64
	if s.version != nil {
		v := *s.version
		expected = &v
	}
	s.mu.Unlock()

	data, err := scene.EncodePayload(payload)
	if err != nil {
		log.Printf("Failed to encode scene for canvas %s: %v", s.canvasId, err)
		return
	}

	if !s.tracker.MarkChange(data) {
		return
	}

	updatedAt, err := s.backend.UpdateScene(context.Background(), s.canvasId, s.user.Id, data, expected)
	if err != nil {
		var conflict interface{ CurrentVersion() int64 }
		if errors.As(err, &conflict) {
			current := conflict.CurrentVersion()
			s.mu.Lock()
			s.version = &current
			s.mu.Unlock()
			log.Printf("Save conflict on canvas %s: stored version %d, keeping changes pending", s.canvasId, current)
			return
		}
		log.Printf("Save failed for canvas %s: %v", s.canvasId, err)
		return
	}

	s.tracker.ConfirmSave(data)
	s.mu.Lock()
	s.version = &updatedAt
	s.lastRemote = data
	s.mu.Unlock()
}
