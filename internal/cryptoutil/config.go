package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	configMagic = "SBU1"
	configVer   = uint16(1)
	nonceSize   = 12
	headerSize  = len(configMagic) + 2 + nonceSize
)

// EncryptConfig seals a config payload with AES-GCM behind a small header:
// magic, big-endian version, nonce.
func EncryptConfig(plain []byte, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	buf.WriteString(configMagic)
	if err := binary.Write(buf, binary.BigEndian, configVer); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	buf.Write(nonce)
	buf.Write(aead.Seal(nil, nonce, plain, []byte(configMagic)))
	return buf.Bytes(), nil
}

// DecryptConfig opens a payload produced by EncryptConfig.
func DecryptConfig(ciphertext []byte, key []byte) ([]byte, error) {
	if len(ciphertext) < headerSize {
		return nil, errors.New("config cipher too short")
	}
	if string(ciphertext[:len(configMagic)]) != configMagic {
		return nil, errors.New("invalid config header")
	}
	if ver := binary.BigEndian.Uint16(ciphertext[4:6]); ver != configVer {
		return nil, fmt.Errorf("unsupported config version %d", ver)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, ciphertext[6:headerSize], ciphertext[headerSize:], []byte(configMagic))
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
