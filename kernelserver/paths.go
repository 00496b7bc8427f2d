package kernelserver

import (
	"path/filepath"
	"strings"
)

// SecurePath clamps p into root and returns it relative to root. "~" is
// dropped, absolute paths under root are made relative, and ".." segments
// cannot climb above root.
func SecurePath(root, p string) string {
	p = strings.ReplaceAll(p, "~", "")
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	clean := filepath.Clean(string(filepath.Separator) + p)
	return strings.TrimPrefix(clean, string(filepath.Separator))
}

// endpointFile is the materialised file an endpoint runs: "a/b.py" becomes
// "a/b--endpoint.py".
func endpointFile(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "--endpoint" + ext
}
