package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefault_HasSaneValues(t *testing.T) {
	cfg := Default()

	if cfg.Session.MaxSessions != 10 {
		t.Errorf("MaxSessions = %d, want 10", cfg.Session.MaxSessions)
	}
	if cfg.Persistence.MaxRecordBytes != 10<<20 {
		t.Errorf("MaxRecordBytes = %d, want %d", cfg.Persistence.MaxRecordBytes, 10<<20)
	}
	if cfg.RateLimit.DefaultLimit != 5 {
		t.Errorf("DefaultLimit = %d, want 5", cfg.RateLimit.DefaultLimit)
	}
	if cfg.RateLimit.DefaultWindow() != 60*time.Second {
		t.Errorf("DefaultWindow = %v, want 60s", cfg.RateLimit.DefaultWindow())
	}

	resume, ok := cfg.RateLimit.Operations["resume"]
	if !ok {
		t.Fatal("default config should configure the resume operation")
	}
	if resume.Limit != 5 || resume.WindowSecs != 60 {
		t.Errorf("resume limit = %+v, want {5 60}", resume)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should validate cleanly, got: %v", ValidationErrors(errs))
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "zero max sessions",
			mutate: func(c *Config) { c.Session.MaxSessions = 0 },
			field:  "session.max_sessions",
		},
		{
			name:   "negative restart budget",
			mutate: func(c *Config) { c.Session.RestartBudget = -1 },
			field:  "session.restart_budget",
		},
		{
			name:   "zero query timeout",
			mutate: func(c *Config) { c.Session.QueryTimeoutMs = 0 },
			field:  "session.query_timeout_ms",
		},
		{
			name:   "zero max record bytes",
			mutate: func(c *Config) { c.Persistence.MaxRecordBytes = 0 },
			field:  "persistence.max_record_bytes",
		},
		{
			name:   "zero default limit",
			mutate: func(c *Config) { c.RateLimit.DefaultLimit = 0 },
			field:  "ratelimit.default_limit",
		},
		{
			name: "bad per-operation window",
			mutate: func(c *Config) {
				c.RateLimit.Operations = map[string]OperationLimit{"resume": {Limit: 5, WindowSecs: 0}}
			},
			field: "ratelimit.operations.resume.window_secs",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			field:  "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}

			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got: %v", tt.field, ValidationErrors(errs))
			}
		})
	}
}

func TestValidationErrors_Message(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("expected count header in message, got: %s", msg)
	}
	if !strings.Contains(msg, "a: bad") || !strings.Contains(msg, "b: worse") {
		t.Errorf("expected both errors in message, got: %s", msg)
	}

	single := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if single.Error() != "a: bad (got: 1)" {
		t.Errorf("unexpected single-error message: %s", single.Error())
	}
}

func TestResolveSessionsDir(t *testing.T) {
	p := PersistenceConfig{SessionsDir: ""}
	if p.ResolveSessionsDir() == "" {
		t.Error("empty SessionsDir should resolve to a default path")
	}

	p.SessionsDir = "/var/lib/tandem/sessions"
	if got := p.ResolveSessionsDir(); got != "/var/lib/tandem/sessions" {
		t.Errorf("explicit dir should pass through, got %s", got)
	}
}

func TestCleanupMaxAge(t *testing.T) {
	p := PersistenceConfig{CleanupMaxAgeDays: 7}
	if got := p.CleanupMaxAge(); got != 7*24*time.Hour {
		t.Errorf("CleanupMaxAge = %v, want 168h", got)
	}
}
