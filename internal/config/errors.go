package config

import (
	"fmt"
	"io/fs"
	"strings"
)

// PermissionError reports a config file or directory monitome cannot
// read or write. It matches fs.ErrPermission with errors.Is.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string // command or steps that restore access
	Details string // ownership and mode, when known
}

func (e *PermissionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "monitome cannot %s config %s: permission denied", e.Op, e.Path)
	if e.Details != "" {
		b.WriteString("\n" + e.Details)
	}
	if e.Fix != "" {
		b.WriteString("\nhint: " + e.Fix)
	}
	return b.String()
}

// Is lets callers test for fs.ErrPermission.
func (e *PermissionError) Is(target error) bool {
	return target == fs.ErrPermission
}

// ConfigNotFoundError is returned by LoadFrom when the file is required
// but missing. Load falls back to defaults instead. It matches
// fs.ErrNotExist with errors.Is.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	msg := "no monitome config at " + e.Path
	if e.Hint != "" {
		msg += "\nhint: " + e.Hint
	}
	return msg
}

// Is lets callers test for fs.ErrNotExist.
func (e *ConfigNotFoundError) Is(target error) bool {
	return target == fs.ErrNotExist
}

// InvalidConfigError reports a config that does not parse or whose
// values are out of range. Problems holds one "key: reason" line per
// rejected key.
type InvalidConfigError struct {
	Path     string
	Message  string
	Problems []string
	Hint     string
}

func (e *InvalidConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid monitome config")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	for _, p := range e.Problems {
		b.WriteString("\n  - " + p)
	}
	if e.Hint != "" {
		b.WriteString("\nhint: " + e.Hint)
	}
	return b.String()
}

// Keys returns the config keys named in Problems, in order.
func (e *InvalidConfigError) Keys() []string {
	keys := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		key, _, _ := strings.Cut(p, ":")
		keys = append(keys, key)
	}
	return keys
}
