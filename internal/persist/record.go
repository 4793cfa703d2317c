// Package persist converts live session state to and from signed, versioned
// on-disk records. It owns the save/load/list/cleanup operations and the
// resume pipeline that composes the registry, the rate limiter, and the
// session supervisor into the full recovery path.
package persist

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/session"
	"github.com/tandemlabs/tandem/internal/supervisor"
)

// CurrentVersion is the record schema version this build writes. Records
// with a higher version are rejected on load.
const CurrentVersion = 1

// timeFormat is the on-disk timestamp encoding: RFC 3339, UTC, second
// precision. Round-tripping through it must be lossless, which is why
// sub-second precision is dropped before encoding.
const timeFormat = time.RFC3339

// Record is the persisted snapshot of one session. It is produced only by
// save and resume-prepare, consumed only by load, and never partially
// written.
type Record struct {
	Version      int               `json:"version"`
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	ProjectPath  string            `json:"project_path"`
	Config       map[string]string `json:"config"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	ClosedAt     string            `json:"closed_at"`
	Conversation []MessageRecord   `json:"conversation"`
	Todos        []TodoRecord      `json:"todos"`
	Signature    string            `json:"signature,omitempty"`
}

// MessageRecord is one conversation entry in its on-disk shape.
type MessageRecord struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// TodoRecord is one task-list entry in its on-disk shape.
type TodoRecord struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"active_form"`
}

// NewRecord flattens a session and its live state into a Record closed at
// the given time. The record is unsigned; call Sign before writing it.
func NewRecord(s session.Session, state supervisor.ConversationState, closedAt time.Time) *Record {
	r := &Record{
		Version:      CurrentVersion,
		ID:           s.ID,
		Name:         s.Name,
		ProjectPath:  s.ProjectPath,
		Config:       make(map[string]string, len(s.Config)),
		CreatedAt:    encodeTime(s.CreatedAt),
		UpdatedAt:    encodeTime(s.UpdatedAt),
		ClosedAt:     encodeTime(closedAt),
		Conversation: make([]MessageRecord, len(state.Messages)),
		Todos:        make([]TodoRecord, len(state.Todos)),
	}
	for k, v := range s.Config {
		r.Config[k] = v
	}
	for i, m := range state.Messages {
		r.Conversation[i] = MessageRecord{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: encodeTime(m.Timestamp),
		}
	}
	for i, td := range state.Todos {
		r.Todos[i] = TodoRecord{
			Content:    td.Content,
			Status:     string(td.Status),
			ActiveForm: td.ActiveForm,
		}
	}
	return r
}

func encodeTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeFormat)
}

func decodeTime(field, s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, errors.NewFieldError(field, "is not a valid RFC 3339 timestamp")
	}
	return t, nil
}

// canonicalPayload produces the canonical encoding of every field except the
// signature. Field keys are normalized to their canonical string names and
// emitted in sorted order, so decoding a record and re-deriving the payload
// is byte-identical to the payload signed at save time.
func (r *Record) canonicalPayload() ([]byte, error) {
	conversation := make([]any, len(r.Conversation))
	for i, m := range r.Conversation {
		conversation[i] = map[string]any{
			"id":        m.ID,
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": m.Timestamp,
		}
	}
	todos := make([]any, len(r.Todos))
	for i, td := range r.Todos {
		todos[i] = map[string]any{
			"content":     td.Content,
			"status":      td.Status,
			"active_form": td.ActiveForm,
		}
	}
	cfg := r.Config
	if cfg == nil {
		cfg = map[string]string{}
	}

	// encoding/json emits map keys in sorted order, which is the canonical
	// ordering this format relies on.
	payload := map[string]any{
		"version":      r.Version,
		"id":           r.ID,
		"name":         r.Name,
		"project_path": r.ProjectPath,
		"config":       cfg,
		"created_at":   r.CreatedAt,
		"updated_at":   r.UpdatedAt,
		"closed_at":    r.ClosedAt,
		"conversation": conversation,
		"todos":        todos,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	return data, nil
}

// Sign computes the keyed hash over the canonical payload and stores it in
// the signature field.
func (r *Record) Sign(key []byte) error {
	payload, err := r.canonicalPayload()
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	r.Signature = hex.EncodeToString(mac.Sum(nil))
	return nil
}

// VerifySignature re-derives the canonical payload and compares its keyed
// hash against the stored signature. A mismatch is a hard error, never
// ignored. Call only when a signature is present.
func (r *Record) VerifySignature(key []byte) error {
	payload, err := r.canonicalPayload()
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid hex", errors.ErrSignatureVerification)
	}
	if !hmac.Equal(got, want) {
		return fmt.Errorf("%w: record %s", errors.ErrSignatureVerification, r.ID)
	}
	return nil
}

// DecodeRecord parses and validates raw record bytes. The version gate runs
// before the full decode so a future schema with an unknown shape reports
// ErrUnsupportedVersion rather than a confusing field error.
func DecodeRecord(data []byte) (*Record, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: record is not valid JSON", errors.ErrInvalidJSON)
	}

	var versionOnly struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &versionOnly); err != nil {
		return nil, errors.NewFieldError("version", "has wrong type")
	}
	if versionOnly.Version == nil {
		return nil, errors.NewFieldError("version", "is missing")
	}
	if *versionOnly.Version < 1 {
		return nil, errors.NewFieldError("version", "must be at least 1")
	}
	if *versionOnly.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: version %d, this build supports up to %d",
			errors.ErrUnsupportedVersion, *versionOnly.Version, CurrentVersion)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, errors.NewFieldError(typeErr.Field, "has wrong type")
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidJSON, err)
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// validate checks the structural invariants of a decoded record.
func (r *Record) validate() error {
	if err := session.ValidateID(r.ID); err != nil {
		return err
	}
	if r.Name == "" {
		return errors.NewFieldError("name", "is missing")
	}
	if r.ProjectPath == "" {
		return errors.NewFieldError("project_path", "is missing")
	}
	for _, ts := range []struct{ field, value string }{
		{"created_at", r.CreatedAt},
		{"updated_at", r.UpdatedAt},
		{"closed_at", r.ClosedAt},
	} {
		if _, err := decodeTime(ts.field, ts.value); err != nil {
			return err
		}
	}
	for i, m := range r.Conversation {
		if m.ID == "" {
			return errors.NewFieldError(fmt.Sprintf("conversation[%d].id", i), "is missing")
		}
		if _, err := session.ParseRole(m.Role); err != nil {
			return errors.NewFieldError(fmt.Sprintf("conversation[%d].role", i), fmt.Sprintf("has unknown value %q", m.Role))
		}
		if _, err := decodeTime(fmt.Sprintf("conversation[%d].timestamp", i), m.Timestamp); err != nil {
			return err
		}
	}
	for i, td := range r.Todos {
		if _, err := session.ParseTodoStatus(td.Status); err != nil {
			return errors.NewFieldError(fmt.Sprintf("todos[%d].status", i), fmt.Sprintf("has unknown value %q", td.Status))
		}
	}
	return nil
}

// Session reconstructs the session identity carried by the record.
func (r *Record) Session() (session.Session, error) {
	created, err := decodeTime("created_at", r.CreatedAt)
	if err != nil {
		return session.Session{}, err
	}
	updated, err := decodeTime("updated_at", r.UpdatedAt)
	if err != nil {
		return session.Session{}, err
	}

	cfg := make(map[string]string, len(r.Config))
	for k, v := range r.Config {
		cfg[k] = v
	}
	return session.Session{
		ID:          r.ID,
		Name:        r.Name,
		ProjectPath: r.ProjectPath,
		Config:      cfg,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

// Messages reconstructs the typed message list in original order.
func (r *Record) Messages() ([]session.Message, error) {
	out := make([]session.Message, len(r.Conversation))
	for i, m := range r.Conversation {
		role, err := session.ParseRole(m.Role)
		if err != nil {
			return nil, err
		}
		ts, err := decodeTime(fmt.Sprintf("conversation[%d].timestamp", i), m.Timestamp)
		if err != nil {
			return nil, err
		}
		out[i] = session.Message{ID: m.ID, Role: role, Content: m.Content, Timestamp: ts}
	}
	return out, nil
}

// TodoItems reconstructs the typed task list in original order.
func (r *Record) TodoItems() ([]session.Todo, error) {
	out := make([]session.Todo, len(r.Todos))
	for i, td := range r.Todos {
		status, err := session.ParseTodoStatus(td.Status)
		if err != nil {
			return nil, err
		}
		out[i] = session.Todo{Content: td.Content, Status: status, ActiveForm: td.ActiveForm}
	}
	return out, nil
}
