package publish

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxBlobNameLen bounds markdown blob names copied into the build tree.
const maxBlobNameLen = 256

// shellMetaChars are rejected in blob names: the names become filesystem
// paths handed to an external build tool.
const shellMetaChars = ";&|$`><*?()[]{}!#~'\"\\ \t\n\r"

// suspiciousExtensions must not appear anywhere in the build output. A
// static site has no business shipping executables or libraries.
var suspiciousExtensions = map[string]struct{}{
	".exe": {},
	".sh":  {},
	".bat": {},
	".cmd": {},
	".dll": {},
	".so":  {},
}

// ValidateBlobName checks one markdown blob name against the download rules.
// Every name in the container must pass before any file is copied; one bad
// name aborts the whole job.
func ValidateBlobName(name string) error {
	if name == "" {
		return fmt.Errorf("empty blob name")
	}
	if len(name) > maxBlobNameLen {
		return fmt.Errorf("blob name %q exceeds %d characters", name[:32]+"...", maxBlobNameLen)
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return fmt.Errorf("blob name %q is an absolute path", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("blob name %q contains a parent reference", name)
	}
	if !strings.HasSuffix(name, ".md") {
		return fmt.Errorf("blob name %q is not a markdown file", name)
	}
	if i := strings.IndexAny(name, shellMetaChars); i >= 0 {
		return fmt.Errorf("blob name %q contains forbidden character %q", name, name[i])
	}
	return nil
}

// ValidateOutput checks the generator's output tree before it is deployed:
// index.html must exist at the root, no suspicious file extensions anywhere,
// no symlinks, and every path must stay inside outdir.
func ValidateOutput(outdir string) error {
	if _, err := os.Stat(filepath.Join(outdir, "index.html")); err != nil {
		return fmt.Errorf("build output has no index.html: %w", err)
	}

	root, err := filepath.Abs(outdir)
	if err != nil {
		return fmt.Errorf("resolving output dir: %w", err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return fmt.Errorf("build output contains symlink %s", path)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("build output path %s escapes the output dir", path)
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, bad := suspiciousExtensions[ext]; bad {
			return fmt.Errorf("build output contains suspicious file %s", path)
		}
		return nil
	})
}
