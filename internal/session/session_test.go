package session

import (
	"strings"
	"testing"

	"github.com/tandemlabs/tandem/internal/errors"
)

func TestNew_GeneratesValidID(t *testing.T) {
	s := New("/tmp/project", "", nil)

	if s.ID == "" {
		t.Fatal("New should generate an ID")
	}
	if err := ValidateID(s.ID); err != nil {
		t.Errorf("generated ID %q should pass validation: %v", s.ID, err)
	}
	if s.Name != "project" {
		t.Errorf("Name = %q, want basename %q", s.Name, "project")
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
	if s.Config == nil {
		t.Error("Config should never be nil")
	}
}

func TestNew_DistinctIDs(t *testing.T) {
	a := New("/tmp/a", "", nil)
	b := New("/tmp/b", "", nil)
	if a.ID == b.ID {
		t.Errorf("two sessions share ID %q", a.ID)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"short alnum", "abc123", true},
		{"underscores and hyphens", "a_b-c", true},
		{"single char", "x", true},
		{"empty", "", false},
		{"leading hyphen", "-abc", false},
		{"path traversal", "../../etc/passwd", false},
		{"embedded slash", "abc/def", false},
		{"embedded backslash", `abc\def`, false},
		{"dot", "abc.json", false},
		{"null byte", "abc\x00def", false},
		{"too long", strings.Repeat("a", 65), false},
		{"max length", strings.Repeat("a", 64), true},
		{"space", "abc def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.ok && err != nil {
				t.Errorf("ValidateID(%q) = %v, want nil", tt.id, err)
			}
			if !tt.ok {
				if err == nil {
					t.Errorf("ValidateID(%q) = nil, want error", tt.id)
				} else if !errors.Is(err, errors.ErrInvalidSessionID) {
					t.Errorf("ValidateID(%q) should wrap ErrInvalidSessionID, got %v", tt.id, err)
				}
			}
		})
	}
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/dev/myproject", "myproject"},
		{"/home/dev/myproject/", "myproject"},
		{"/", "untitled"},
	}
	for _, tt := range tests {
		if got := DefaultName(tt.path); got != tt.want {
			t.Errorf("DefaultName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClone_DoesNotAliasConfig(t *testing.T) {
	s := New("/tmp/p", "n", map[string]string{"model": "m1"})
	c := s.Clone()

	c.Config["model"] = "m2"
	if s.Config["model"] != "m1" {
		t.Error("Clone should deep-copy the config map")
	}
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"user", "assistant", "system", "tool"} {
		if _, err := ParseRole(valid); err != nil {
			t.Errorf("ParseRole(%q) = %v, want nil", valid, err)
		}
	}
	for _, invalid := range []string{"", "admin", "User", "ASSISTANT"} {
		_, err := ParseRole(invalid)
		if err == nil {
			t.Errorf("ParseRole(%q) = nil, want error", invalid)
		} else if !errors.Is(err, errors.ErrInvalidRecord) {
			t.Errorf("ParseRole(%q) should wrap ErrInvalidRecord", invalid)
		}
	}
}

func TestParseTodoStatus(t *testing.T) {
	for _, valid := range []string{"pending", "in_progress", "completed"} {
		if _, err := ParseTodoStatus(valid); err != nil {
			t.Errorf("ParseTodoStatus(%q) = %v, want nil", valid, err)
		}
	}
	for _, invalid := range []string{"", "done", "Pending", "in-progress"} {
		if _, err := ParseTodoStatus(invalid); err == nil {
			t.Errorf("ParseTodoStatus(%q) = nil, want error", invalid)
		}
	}
}
