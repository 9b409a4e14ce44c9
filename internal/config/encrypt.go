package config

import (
	"fmt"
	"os"

	"github.com/rowjay/solr-backups/internal/cryptoutil"
)

// EncryptConfigFile encrypts a config file with the provided key. The output
// path must carry an .enc or .encrypted suffix so Load recognises it.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	if !isEncryptedPath(outputPath) {
		return fmt.Errorf("output %s must end in .enc or .encrypted", outputPath)
	}
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.EncryptConfig(plain, parsed)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, ciphertext, 0o600)
}
