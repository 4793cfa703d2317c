package persist

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tandemlabs/tandem/internal/config"
	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/logging"
	"github.com/tandemlabs/tandem/internal/ratelimit"
	"github.com/tandemlabs/tandem/internal/session"
	"github.com/tandemlabs/tandem/internal/supervisor"
)

// recordExt is the filename extension of persisted records.
const recordExt = ".json"

// signingKeyBytes is the size of a generated HMAC key.
const signingKeyBytes = 32

// Store owns the on-disk session records under one directory. It implements
// supervisor.Saver so stop-time auto-save flows through the same path as an
// explicit save. Store is safe for concurrent use; saves to different
// sessions proceed fully in parallel.
type Store struct {
	dir      string
	maxBytes int64
	key      []byte
	sup      *supervisor.Supervisor
	limiter  *ratelimit.Limiter
	logger   *logging.Logger

	// mu guards inFlight, the per-session-id save lock table. An id present
	// in the table means a save is in flight; the entry is removed on every
	// exit path.
	mu       sync.Mutex
	inFlight map[string]struct{}

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewStore creates a Store over the configured sessions directory. The
// signing key is loaded from the configured key file, or generated and
// written with owner-only permissions on first use.
func NewStore(cfg config.PersistenceConfig, sup *supervisor.Supervisor, limiter *ratelimit.Limiter, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	key, err := loadOrCreateSigningKey(cfg.ResolveSigningKeyFile())
	if err != nil {
		return nil, err
	}

	return &Store{
		dir:      cfg.ResolveSessionsDir(),
		maxBytes: cfg.MaxRecordBytes,
		key:      key,
		sup:      sup,
		limiter:  limiter,
		logger:   logger,
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}, nil
}

// Dir returns the sessions directory this store writes to.
func (st *Store) Dir() string { return st.dir }

// TrySave snapshots a live session to disk. At most one save per session id
// is in flight at a time; a second concurrent attempt returns
// ErrSaveInProgress rather than blocking. The snapshot is a best-effort read
// of the live state at call time and does not block ongoing activity.
func (st *Store) TrySave(id string) error {
	if !st.acquireSaveLock(id) {
		return fmt.Errorf("%w: session %s", errors.ErrSaveInProgress, id)
	}
	defer st.releaseSaveLock(id)

	s, ok := st.sup.Registry().Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	state, err := st.sup.GetState(id)
	if err != nil {
		return fmt.Errorf("snapshot state for %s: %w", id, err)
	}

	return st.writeRecord(NewRecord(s, state, st.now()))
}

// writeRecord signs and atomically writes a record to its final path.
func (st *Store) writeRecord(r *Record) error {
	if err := session.ValidateID(r.ID); err != nil {
		return err
	}
	if err := r.Sign(st.key); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.ID, err)
	}

	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}
	if err := atomicWriteFile(st.recordPath(r.ID), data, 0o644); err != nil {
		return err
	}

	st.logger.Debug("record saved", "session_id", r.ID, "bytes", len(data))
	return nil
}

// Load reads, validates, and verifies the record for a session id. A record
// with no signature field predates signing: it is accepted, logged as a
// warning, and re-signed on its next save.
func (st *Store) Load(id string) (*Record, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}
	path := st.recordPath(id)

	// Size gate before the full read.
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no persisted record for %s", errors.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("stat record %s: %w", id, err)
	}
	if st.maxBytes > 0 && info.Size() > st.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", errors.ErrRecordTooLarge, info.Size(), st.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}

	r, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	// The signature covers the record's content, not its filename, so a
	// record copied to another id's path would still verify. The internal id
	// is checked against the requested one before anything trusts it.
	if r.ID != id {
		return nil, errors.NewFieldError("id", fmt.Sprintf("is %q, does not match filename id %q", r.ID, id))
	}

	if r.Signature == "" {
		st.logger.Warn("record has no signature, accepting as pre-signing legacy",
			"session_id", id)
		return r, nil
	}
	if err := r.VerifySignature(st.key); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes the persisted record for a session id.
func (st *Store) Delete(id string) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(st.recordPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no persisted record for %s", errors.ErrSessionNotFound, id)
		}
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// recordPath builds the on-disk path for a session id. Callers must have
// validated the id first; the strict syntax check is what keeps a crafted id
// from escaping the sessions directory.
func (st *Store) recordPath(id string) string {
	return filepath.Join(st.dir, id+recordExt)
}

func (st *Store) acquireSaveLock(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, busy := st.inFlight[id]; busy {
		return false
	}
	st.inFlight[id] = struct{}{}
	return true
}

func (st *Store) releaseSaveLock(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.inFlight, id)
}

// loadOrCreateSigningKey reads the HMAC key, generating one on first use.
func loadOrCreateSigningKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) == 0 {
			return nil, fmt.Errorf("signing key file %s is empty", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	key = make([]byte, signingKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := atomicWriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return key, nil
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file in the same directory first, then renaming. The target file is never
// in a partially written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
