// Package session defines the core Session type and the conversation data
// model shared by the registry, the supervisor, and the persistence layer.
package session

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/tandemlabs/tandem/internal/errors"
)

// idPattern is the strict syntax check applied to session identifiers before
// they are used to build filesystem paths. It admits the IDs we generate
// (UUIDs) while rejecting separators, dots, and anything else a crafted ID
// could use for path injection.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Session is the unit of work binding a conversation, a task list, and a
// project directory. Sessions are passed by value; the registry stores
// copies so mutation only happens through its update path.
type Session struct {
	// ID is the opaque unique identifier, generated at creation time.
	ID string
	// Name is the human-readable display name.
	Name string
	// ProjectPath is the absolute path of the bound project directory.
	ProjectPath string
	// Config is the provider/model/sampling record, string-valued by contract.
	Config map[string]string
	// CreatedAt is when the session was first created.
	CreatedAt time.Time
	// UpdatedAt is when the session was last renamed or reconfigured.
	UpdatedAt time.Time
}

// New creates a Session bound to the given absolute project path.
// If name is empty, a display name is derived from the path's basename.
func New(projectPath, name string, cfg map[string]string) Session {
	if name == "" {
		name = DefaultName(projectPath)
	}
	now := time.Now().UTC()
	return Session{
		ID:          uuid.NewString(),
		Name:        name,
		ProjectPath: projectPath,
		Config:      cloneConfig(cfg),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefaultName derives a display name from the project directory basename.
func DefaultName(projectPath string) string {
	base := filepath.Base(filepath.Clean(projectPath))
	if base == "." || base == string(filepath.Separator) {
		return "untitled"
	}
	return base
}

// ValidateID checks a session identifier against the strict syntax rules.
// Every path built from an externally supplied ID must pass through this
// check first.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%q: %w", id, errors.ErrInvalidSessionID)
	}
	return nil
}

// Clone returns a deep copy of the session. The config map is copied so the
// caller cannot alias registry-held state.
func (s Session) Clone() Session {
	c := s
	c.Config = cloneConfig(s.Config)
	return c
}

func cloneConfig(cfg map[string]string) map[string]string {
	if cfg == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
