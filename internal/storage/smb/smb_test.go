package smb

import (
	"encoding/json"
	"testing"
)

func TestNew(t *testing.T) {
	mount := t.TempDir()
	raw, _ := json.Marshal(Config{Server: "//nas/share", MountPath: mount})
	b, err := NewFromJSON(raw)
	if err != nil {
		t.Fatalf("NewFromJSON: %v", err)
	}
	if b.Type() != "smb" {
		t.Errorf("Type = %q", b.Type())
	}
	if b.Root() != mount || b.Server() != "//nas/share" {
		t.Errorf("root=%q server=%q", b.Root(), b.Server())
	}
}

func TestNewRejects(t *testing.T) {
	mount := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no mount", Config{Server: "//nas/share"}},
		{"missing mount", Config{MountPath: mount + "/absent"}},
		{"bare host", Config{Server: "//nas", MountPath: mount}},
		{"no slashes", Config{Server: "nas/share", MountPath: mount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("New(%+v) succeeded", tt.cfg)
			}
		})
	}

	if _, err := New(Config{MountPath: mount}); err != nil {
		t.Errorf("server is optional: %v", err)
	}
}
