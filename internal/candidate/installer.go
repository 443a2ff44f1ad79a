// Package candidate stages a proposed source file into the shared build
// tree and guarantees the pristine file comes back afterward.
package candidate

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Marker lines delimiting the mutable region of a candidate. They are
// stripped before installation and never interpreted further.
const (
	markerStart = "EVOLVE-BLOCK-START"
	markerEnd   = "EVOLVE-BLOCK-END"
)

// backupSuffix names the one pristine copy of the target file, created on
// the first install of the process and used by every restore after it.
const backupSuffix = ".orig_bak"

// Installer owns the single target-file slot in the build tree. At most
// one candidate may be resident at a time; Install refuses to stage a new
// one while a previous install has not been restored.
type Installer struct {
	target    string
	log       *zap.Logger
	installed bool
	candBytes int64
}

func NewInstaller(target string, log *zap.Logger) *Installer {
	return &Installer{target: target, log: log}
}

// StripMarkers removes evolve-block delimiter lines from candidate text.
// The cleaned text always ends with a single trailing newline.
func StripMarkers(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, markerStart) || strings.Contains(line, markerEnd) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n") + "\n"
}

// Install strips markers from the candidate text and writes it over the
// target file. When the cleaned text is byte-identical to the resident
// file it returns noop=true without writing or backing up, so callers can
// skip the rebuild. The first effective install of the process backs up
// the pristine target next to it.
func (in *Installer) Install(text string) (noop bool, err error) {
	if in.installed {
		return false, fmt.Errorf("candidate already installed at %s", in.target)
	}

	cleaned := []byte(StripMarkers(text))
	in.candBytes = int64(len(cleaned))

	resident, err := os.ReadFile(in.target)
	if err != nil {
		return false, fmt.Errorf("reading target %s: %w", in.target, err)
	}
	if bytes.Equal(cleaned, resident) {
		in.log.Debug("candidate identical to resident file, skipping install",
			zap.String("target", in.target))
		return true, nil
	}

	backup := in.target + backupSuffix
	if _, statErr := os.Stat(backup); os.IsNotExist(statErr) {
		if err := copyFile(in.target, backup); err != nil {
			return false, fmt.Errorf("backing up target: %w", err)
		}
	}

	if err := os.WriteFile(in.target, cleaned, 0o644); err != nil {
		return false, fmt.Errorf("writing candidate to %s: %w", in.target, err)
	}
	in.installed = true
	return false, nil
}

// Restore copies the pristine backup back over the target. It must run at
// the end of every evaluation, including failed ones. A missing backup
// means no candidate was ever installed and is a silent no-op. Failures
// are logged rather than returned: restore is cleanup, not part of the
// scored result.
func (in *Installer) Restore() {
	in.installed = false
	backup := in.target + backupSuffix
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		return
	}
	if err := copyFile(backup, in.target); err != nil {
		in.log.Error("restoring pristine target failed",
			zap.String("target", in.target), zap.Error(err))
	}
}

// CandidateBytes is the size of the last cleaned candidate, used to seed
// the baseline's reference candidate size.
func (in *Installer) CandidateBytes() int64 {
	return in.candBytes
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
