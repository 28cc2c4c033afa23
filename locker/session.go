package locker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"musiclocker-backend/audio"
	"musiclocker-backend/models"
	"musiclocker-backend/mp3parser"

	"github.com/google/uuid"
)

// Handle kinds a track is reachable under while it is active.
const (
	HandleAudio    = "audio"
	HandleDownload = "download"
	HandleExport   = "export"
	HandleCover    = "cover"
)

// Inspector produces the metadata shown next to the player.
type Inspector interface {
	Inspect(contentType string, data []byte) *models.TrackInfo
}

// Track is an uploaded file and everything derived from it. It is never
// mutated after creation.
type Track struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
	Cover       *mp3parser.CoverArt
	Info        *models.TrackInfo
	Exportable  bool // MP3 that can be re-encoded as WAV
	UploadedAt  time.Time
}

// AcceptsAudio reports whether the declared media type is audio.
func AcceptsAudio(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "audio/")
}

// LoadTrack builds a track from raw file bytes. A missing or unreadable cover
// is not an error; the track simply has none.
func LoadTrack(name, contentType string, data []byte, inspector Inspector) *Track {
	t := &Track{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Exportable:  !audio.IsWAV(contentType, data),
		UploadedAt:  time.Now(),
	}

	cover, err := mp3parser.ExtractCoverArt(data)
	if err != nil {
		slog.Debug("no cover art", "file", name, "err", err)
	} else {
		t.Cover = cover
	}

	if inspector != nil {
		t.Info = inspector.Inspect(contentType, data)
	}
	return t
}

func (t *Track) Size() int {
	return len(t.Data)
}

// Handles lists the handle kinds the track can be addressed by.
func (t *Track) Handles() []string {
	handles := []string{HandleAudio, HandleDownload}
	if t.Exportable {
		handles = append(handles, HandleExport)
	}
	if t.Cover != nil {
		handles = append(handles, HandleCover)
	}
	return handles
}

// Session is the state of one browser: the auth flag and at most one track.
type Session struct {
	ID string

	mu            sync.Mutex
	authenticated bool
	track         *Track
}

func newSession() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) Login() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
}

// Logout drops the auth flag and the active track.
func (s *Session) Logout() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	return s.releaseLocked()
}

func (s *Session) Track() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// Replace releases the handles of the previous track, if any, and makes t the
// active one. The released handles are returned as "kind/id".
func (s *Session) Replace(t *Track) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := s.releaseLocked()
	s.track = t
	return released
}

// Remove releases the active track.
func (s *Session) Remove() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

// Lookup resolves a handle id. Ids of released tracks never resolve again.
func (s *Session) Lookup(id string) (*Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil || s.track.ID != id {
		return nil, false
	}
	return s.track, true
}

func (s *Session) releaseLocked() []string {
	if s.track == nil {
		return nil
	}
	var released []string
	for _, kind := range s.track.Handles() {
		released = append(released, kind+"/"+s.track.ID)
	}
	s.track = nil
	return released
}

// Store keeps sessions by id and forgets them after a period of inactivity.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

type entry struct {
	session *Session
	expires time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new unauthenticated session.
func (st *Store) Create() *Session {
	s := newSession()
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = &entry{session: s, expires: st.now().Add(st.ttl)}
	return s
}

// Get returns a live session and extends its lifetime.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	now := st.now()
	if now.After(e.expires) {
		delete(st.sessions, id)
		e.session.Logout()
		return nil, false
	}
	e.expires = now.Add(st.ttl)
	return e.session, true
}

// Renew replaces old with a new authenticated session under a fresh id and
// moves the active track across. The old id no longer resolves.
func (st *Store) Renew(old *Session) *Session {
	old.mu.Lock()
	track := old.track
	old.track = nil
	old.authenticated = false
	old.mu.Unlock()

	s := newSession()
	s.authenticated = true
	s.track = track

	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, old.ID)
	st.sessions[s.ID] = &entry{session: s, expires: st.now().Add(st.ttl)}
	return s
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// CleanExpired removes expired sessions and returns how many were dropped.
func (st *Store) CleanExpired() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	n := 0
	for id, e := range st.sessions {
		if now.After(e.expires) {
			delete(st.sessions, id)
			e.session.Logout()
			n++
		}
	}
	return n
}

// Cleanup runs CleanExpired every interval until ctx is done.
func (st *Store) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.CleanExpired(); n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
		}
	}
}
