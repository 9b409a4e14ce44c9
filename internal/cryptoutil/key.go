package cryptoutil

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ParseKey expects a 32-byte key in base64 or hex form. A "file:" prefix reads
// the encoded key from a file, as mounted container secrets are.
func ParseKey(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("encryption key is empty")
	}
	trimmed := strings.TrimSpace(key)
	if strings.HasPrefix(trimmed, "file:") {
		raw, err := os.ReadFile(strings.TrimPrefix(trimmed, "file:"))
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		trimmed = strings.TrimSpace(string(raw))
		if trimmed == "" || strings.HasPrefix(trimmed, "file:") {
			return nil, errors.New("key file is empty or nested")
		}
	}

	var data []byte
	var err error
	switch {
	case strings.HasPrefix(trimmed, "base64:"):
		data, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(trimmed, "base64:"))
	case strings.HasPrefix(trimmed, "hex:"):
		data, err = hex.DecodeString(strings.TrimPrefix(trimmed, "hex:"))
	default:
		data, err = base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			data, err = hex.DecodeString(trimmed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(data) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d (expected %d bytes)", len(data), KeySize)
	}
	return data, nil
}
