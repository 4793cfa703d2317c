package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tandemlabs/tandem/internal/session"
)

// Summary is the listing view of one persisted record: just enough to show a
// resumable session without parsing or verifying the full record.
type Summary struct {
	ID          string
	Name        string
	ProjectPath string
	ClosedAt    time.Time
}

// summaryFields is the partial decode target for listing. Only these four
// fields are parsed per file.
type summaryFields struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProjectPath string `json:"project_path"`
	ClosedAt    string `json:"closed_at"`
}

// ListPersisted scans the sessions directory and returns a summary per
// readable record, sorted by close time descending. Unreadable, oversized,
// or corrupt files are skipped and logged, never fatal to the listing. A
// missing sessions directory yields an empty list.
func (st *Store) ListPersisted() ([]Summary, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		summary, err := st.readSummary(entry.Name())
		if err != nil {
			st.logger.Warn("skipping unreadable record", "file", entry.Name(), "error", err)
			continue
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ClosedAt.After(out[j].ClosedAt)
	})
	return out, nil
}

// ListResumable returns the persisted sessions that can actually be resumed
// right now: those whose id and project path do not collide with a live
// session.
func (st *Store) ListResumable() ([]Summary, error) {
	all, err := st.ListPersisted()
	if err != nil {
		return nil, err
	}

	reg := st.sup.Registry()
	out := make([]Summary, 0, len(all))
	for _, s := range all {
		if _, live := reg.Lookup(s.ID); live {
			continue
		}
		if _, live := reg.LookupByPath(s.ProjectPath); live {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// readSummary parses the identity fields of one record file.
func (st *Store) readSummary(name string) (Summary, error) {
	id := strings.TrimSuffix(name, recordExt)
	if err := session.ValidateID(id); err != nil {
		return Summary{}, err
	}

	path := filepath.Join(st.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return Summary{}, err
	}
	if st.maxBytes > 0 && info.Size() > st.maxBytes {
		return Summary{}, fmt.Errorf("record is %d bytes, limit %d", info.Size(), st.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}

	var fields summaryFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return Summary{}, fmt.Errorf("parse record: %w", err)
	}
	if fields.ID != id {
		return Summary{}, fmt.Errorf("record id %q does not match filename", fields.ID)
	}

	closedAt, err := decodeTime("closed_at", fields.ClosedAt)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ID:          fields.ID,
		Name:        fields.Name,
		ProjectPath: fields.ProjectPath,
		ClosedAt:    closedAt,
	}, nil
}
