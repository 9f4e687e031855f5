// Package smb serves a CIFS share that the host has already mounted.
// Reads go through the local backend rooted at the mount point.
package smb

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/zipstream/internal/logging"
	"github.com/fruitsalade/zipstream/internal/storage/local"
)

// Config names the share and where it is mounted. Credentials belong to
// the mount, not to this process.
type Config struct {
	Server    string `json:"server"`     // //host/share, informational
	MountPath string `json:"mount_path"` // required
}

// SMBBackend is a LocalBackend rooted at the share's mount point.
type SMBBackend struct {
	*local.LocalBackend
	server string
}

// New attaches to the share mounted at cfg.MountPath.
func New(cfg Config) (*SMBBackend, error) {
	if cfg.MountPath == "" {
		return nil, fmt.Errorf("mount_path is required")
	}
	if cfg.Server != "" && !validShare(cfg.Server) {
		return nil, fmt.Errorf("server %q is not of the form //host/share", cfg.Server)
	}

	lb, err := local.New(local.Config{RootPath: cfg.MountPath})
	if err != nil {
		return nil, fmt.Errorf("smb mount %s: %w", cfg.MountPath, err)
	}

	b := &SMBBackend{LocalBackend: lb, server: cfg.Server}
	logging.Info("smb share attached",
		zap.String("server", b.Server()),
		zap.String("mount_path", b.Root()))
	return b, nil
}

// NewFromJSON decodes a Config and calls New.
func NewFromJSON(raw json.RawMessage) (*SMBBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse smb config: %w", err)
	}
	return New(cfg)
}

func validShare(s string) bool {
	host, share, ok := strings.Cut(strings.TrimPrefix(s, "//"), "/")
	return strings.HasPrefix(s, "//") && ok && host != "" && share != ""
}

// Server returns the share name, or "" when none was configured.
func (b *SMBBackend) Server() string { return b.server }

func (b *SMBBackend) Type() string { return "smb" }
