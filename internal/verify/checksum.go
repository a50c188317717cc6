package verify

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"
)

// ExtractChecksum finds the digest for assetName in a checksum file. Both
// bare single-digest files and consolidated "<digest>  <name>" listings are
// accepted.
func ExtractChecksum(data []byte, algo, assetName string) (string, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("checksum file is empty")
	}
	digestLen := expectedDigestLength(algo)
	if isHexDigest(text, digestLen) {
		return strings.ToLower(text), nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		digest := fields[0]
		if !isHexDigest(digest, digestLen) {
			continue
		}
		// sha256sum marks binary mode with a leading '*'.
		candidate := filepath.Base(strings.TrimPrefix(fields[len(fields)-1], "*"))
		if candidate == assetName {
			return strings.ToLower(digest), nil
		}
	}

	return "", fmt.Errorf("checksum for %s not found", assetName)
}

// DetectChecksumAlgorithm guesses the digest algorithm from a checksum file
// name, falling back to defaultAlgo.
func DetectChecksumAlgorithm(filename, defaultAlgo string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "sha2-512sums"),
		strings.Contains(lower, "sha512sums"),
		strings.HasSuffix(lower, ".sha512"),
		strings.HasSuffix(lower, ".sha512.txt"):
		return "sha512"
	case strings.Contains(lower, "sha2-256sums"),
		strings.Contains(lower, "sha256sums"),
		strings.HasSuffix(lower, ".sha256"),
		strings.HasSuffix(lower, ".sha256.txt"):
		return "sha256"
	default:
		return defaultAlgo
	}
}

func newHash(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "sha256", "":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// Digest returns the lowercase hex digest of r.
func Digest(r io.Reader, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MismatchError reports an artifact whose digest differs from the published one.
type MismatchError struct {
	Asset    string
	Algo     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch for %s: expected %s, got %s", e.Algo, e.Asset, e.Expected, e.Actual)
}

// CheckDigest hashes r and compares it with expected.
func CheckDigest(r io.Reader, algo, expected, assetName string) error {
	actual, err := Digest(r, algo)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return &MismatchError{Asset: assetName, Algo: algo, Expected: strings.ToLower(expected), Actual: actual}
	}
	return nil
}

func isHexDigest(value string, expectedLen int) bool {
	if expectedLen > 0 && len(value) != expectedLen {
		return false
	}
	if len(value) == 0 || len(value)%2 != 0 {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

func expectedDigestLength(algo string) int {
	switch strings.ToLower(algo) {
	case "sha256":
		return 64
	case "sha512":
		return 128
	default:
		return 0
	}
}

// FormatSize formats bytes as a human-readable size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
