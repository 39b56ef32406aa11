package processor

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/otuserver/internal/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const traversalMarker = "../"

// allowedTarget is the character allow-list applied after the query and
// fragment are stripped.
var allowedTarget = regexp.MustCompile(`^/[/.a-zA-Z0-9_%-]*$`)

// Resolve maps a raw request target to a regular file under root. The order
// of the checks matters: traversal is rejected on the raw target, before any
// stripping or decoding.
func (p *Processor) Resolve(target string) (string, os.FileInfo, error) {
	if strings.Contains(target, traversalMarker) {
		return "", nil, errors.NewPathRejectedError(errors.ErrCodePathTraversal,
			"target contains parent directory reference").WithContext("target", target)
	}

	clean := stripQueryAndFragment(target)
	if !allowedTarget.MatchString(clean) {
		return "", nil, errors.NewPathRejectedError(errors.ErrCodeInvalidPath,
			"target contains disallowed characters").WithContext("target", target)
	}

	decoded := PercentDecode(clean)
	full := filepath.Join(p.root, strings.TrimLeft(decoded, "/"))
	if !withinRoot(p.root, full) {
		return "", nil, errors.NewPathRejectedError(errors.ErrCodeOutsideRoot,
			"target resolves outside the root directory").WithContext("target", target)
	}

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		full = filepath.Join(full, p.index)
	}

	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil, errors.NewNotFoundError(full)
	}

	return full, info, nil
}

// stripQueryAndFragment drops everything from the first '#', then from the
// first '?'.
func stripQueryAndFragment(target string) string {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return target
}

func withinRoot(root, full string) bool {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// PercentDecode replaces every well-formed %XX escape with its byte. Malformed
// escapes are kept literally and byte sequences that are not UTF-8 become
// U+FFFD, so decoding never fails.
func PercentDecode(s string) string {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := unhex(s[i+1])
			lo, okLo := unhex(s[i+2])
			if okHi && okLo {
				buf = append(buf, hi<<4|lo)
				i += 2
				continue
			}
		}
		buf = append(buf, s[i])
	}

	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), buf)
	if err != nil {
		return strings.ToValidUTF8(string(buf), "\uFFFD")
	}
	return string(out)
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
