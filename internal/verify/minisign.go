package verify

import (
	"fmt"
	"strings"

	"github.com/jedisct1/go-minisign"
)

// ParsePublicKey accepts either the bare base64 key or the contents of a
// minisign .pub file (an untrusted comment line followed by the key).
func ParsePublicKey(text string) (minisign.PublicKey, error) {
	var keyLine string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "untrusted comment:") {
			continue
		}
		keyLine = line
	}
	if keyLine == "" {
		return minisign.PublicKey{}, fmt.Errorf("minisign public key is empty")
	}
	pk, err := minisign.NewPublicKey(keyLine)
	if err != nil {
		return minisign.PublicKey{}, fmt.Errorf("parse minisign public key: %w", err)
	}
	return pk, nil
}

// VerifyMinisign checks sigText (the contents of a .minisig file) over content.
func VerifyMinisign(content []byte, sigText string, pk minisign.PublicKey) error {
	sig, err := minisign.DecodeSignature(strings.TrimSpace(sigText))
	if err != nil {
		return fmt.Errorf("read minisign signature: %w", err)
	}
	valid, err := pk.Verify(content, sig)
	if err != nil {
		return fmt.Errorf("minisign: verification error: %w", err)
	}
	if !valid {
		return fmt.Errorf("minisign: signature verification failed")
	}
	return nil
}
