package session

import (
	"testing"
)

func TestPrivacyFilter_IsAllowed(t *testing.T) {
	tests := []struct {
		name        string
		filter      PrivacyFilter
		projectPath string
		want        bool
	}{
		{
			name:        "empty filter allows everything",
			filter:      PrivacyFilter{},
			projectPath: "/home/user/project",
			want:        true,
		},
		{
			name:        "empty project path always allowed",
			filter:      PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			projectPath: "",
			want:        true,
		},
		{
			name:        "allowlist match direct",
			filter:      PrivacyFilter{AllowedPaths: []string{"/home/user/work/*"}},
			projectPath: "/home/user/work/myproject",
			want:        true,
		},
		{
			name:        "allowlist match nested",
			filter:      PrivacyFilter{AllowedPaths: []string{"/home/user/work/*"}},
			projectPath: "/home/user/work/deep/nested/path",
			want:        true,
		},
		{
			name:        "allowlist no match",
			filter:      PrivacyFilter{AllowedPaths: []string{"/home/user/work/*"}},
			projectPath: "/home/user/personal/diary",
			want:        false,
		},
		{
			name:        "blocklist match",
			filter:      PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			projectPath: "/tmp/scratch",
			want:        false,
		},
		{
			name:        "blocklist match nested",
			filter:      PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			projectPath: "/tmp/deep/nested",
			want:        false,
		},
		{
			name:        "blocklist no match",
			filter:      PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			projectPath: "/home/user/project",
			want:        true,
		},
		{
			name: "allowlist passes but blocklist catches",
			filter: PrivacyFilter{
				AllowedPaths: []string{"/home/user/*"},
				BlockedPaths: []string{"/home/user/secret"},
			},
			projectPath: "/home/user/secret",
			want:        false,
		},
		{
			name: "multiple allowlist patterns",
			filter: PrivacyFilter{
				AllowedPaths: []string{"/home/user/work/*", "/home/user/projects/*"},
			},
			projectPath: "/home/user/projects/cool",
			want:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.IsAllowed(tt.projectPath)
			if got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.projectPath, got, tt.want)
			}
		})
	}
}

func TestPrivacyFilter_Apply(t *testing.T) {
	original := &Session{
		ID:          "abc123",
		AgentKind:   KindClaude,
		ProjectPath: "/home/user/projects/myproject",
		PID:         12345,
	}

	t.Run("mask project paths", func(t *testing.T) {
		f := &PrivacyFilter{MaskProjectPaths: true}
		result := f.Apply(original)
		if result.ProjectPath != "myproject" {
			t.Errorf("expected ProjectPath = %q, got %q", "myproject", result.ProjectPath)
		}
		// Original unchanged
		if original.ProjectPath != "/home/user/projects/myproject" {
			t.Error("original was modified")
		}
	})

	t.Run("mask session IDs", func(t *testing.T) {
		f := &PrivacyFilter{MaskSessionIDs: true}
		result := f.Apply(original)
		if result.ID == original.ID {
			t.Error("session ID should have been masked")
		}
		if len(result.ID) == 0 {
			t.Error("masked session ID should not be empty")
		}
	})

	t.Run("mask PIDs", func(t *testing.T) {
		f := &PrivacyFilter{MaskPIDs: true}
		result := f.Apply(original)
		if result.PID != 0 {
			t.Errorf("expected PID = 0, got %d", result.PID)
		}
	})

	t.Run("no masking is noop", func(t *testing.T) {
		f := &PrivacyFilter{}
		result := f.Apply(original)
		if result.ID != original.ID || result.ProjectPath != original.ProjectPath ||
			result.PID != original.PID {
			t.Error("no-op filter should not change any fields")
		}
	})

	t.Run("all masks combined", func(t *testing.T) {
		f := &PrivacyFilter{
			MaskProjectPaths: true,
			MaskSessionIDs:   true,
			MaskPIDs:         true,
		}
		result := f.Apply(original)
		if result.ProjectPath != "myproject" {
			t.Errorf("ProjectPath not masked: %q", result.ProjectPath)
		}
		if result.ID == original.ID {
			t.Error("session ID not masked")
		}
		if result.PID != 0 {
			t.Error("PID not masked")
		}
	})
}

func TestPrivacyFilter_FilterSlice(t *testing.T) {
	sessions := []*Session{
		{ID: "s1", ProjectPath: "/home/user/work/project-a", PID: 100},
		{ID: "s2", ProjectPath: "/home/user/personal/diary", PID: 200},
		{ID: "s3", ProjectPath: "/tmp/scratch", PID: 300},
	}

	f := &PrivacyFilter{
		MaskPIDs:     true,
		BlockedPaths: []string{"/tmp/*"},
	}

	result := f.FilterSlice(sessions)

	// /home/user/work/project-a -> not blocked -> included
	// /home/user/personal/diary -> not blocked -> included
	// /tmp/scratch -> blocked by /tmp/* -> excluded
	if len(result) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(result))
	}

	for _, s := range result {
		if s.PID != 0 {
			t.Errorf("PID should be masked, got %d for %s", s.PID, s.ID)
		}
		if s.ProjectPath == "/tmp/scratch" {
			t.Error("blocked session should not be in result")
		}
	}
}

func TestPrivacyFilter_FilterSlice_AllowAndBlock(t *testing.T) {
	sessions := []*Session{
		{ID: "s1", ProjectPath: "/home/user/work/project-a"},
		{ID: "s2", ProjectPath: "/home/user/work/secret-project"},
		{ID: "s3", ProjectPath: "/other/path"},
	}

	f := &PrivacyFilter{
		AllowedPaths: []string{"/home/user/work/*"},
		BlockedPaths: []string{"/home/user/work/secret-*"},
	}

	result := f.FilterSlice(sessions)

	// project-a: allowed by /home/user/work/*, not blocked -> included
	// secret-project: allowed by /home/user/work/*, but blocked by /home/user/work/secret-* -> excluded
	// /other/path: not in allowlist -> excluded
	if len(result) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result))
	}
	if result[0].ID != "s1" {
		t.Errorf("expected s1, got %s", result[0].ID)
	}
}

func TestPrivacyFilter_IsNoop(t *testing.T) {
	t.Run("zero value is noop", func(t *testing.T) {
		f := &PrivacyFilter{}
		if !f.IsNoop() {
			t.Error("zero value filter should be noop")
		}
	})

	t.Run("with masking is not noop", func(t *testing.T) {
		f := &PrivacyFilter{MaskPIDs: true}
		if f.IsNoop() {
			t.Error("filter with masking should not be noop")
		}
	})

	t.Run("with paths is not noop", func(t *testing.T) {
		f := &PrivacyFilter{AllowedPaths: []string{"/foo/*"}}
		if f.IsNoop() {
			t.Error("filter with allowed paths should not be noop")
		}
	})
}

func TestShortHash_Deterministic(t *testing.T) {
	a := shortHash("abc123")
	b := shortHash("abc123")
	if a != b {
		t.Errorf("shortHash not deterministic: %q vs %q", a, b)
	}

	c := shortHash("different")
	if a == c {
		t.Error("different inputs should produce different hashes")
	}
}
