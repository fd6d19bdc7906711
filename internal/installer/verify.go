package installer

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
)

// loadKeyring reads an armored public keyring.
func loadKeyring(path string) (openpgp.EntityList, error) {
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return nil, fmt.Errorf("opening public key: %w", err)
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loading keyring: %w", err)
	}
	return keyring, nil
}

// verifyDigests checks the armored detached signature over the digests file.
func verifyDigests(keyring openpgp.EntityList, digests, signature []byte) error {
	if len(signature) == 0 {
		return fmt.Errorf("%s missing but a public key is configured", signatureFile)
	}
	if _, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(digests), bytes.NewReader(signature), nil); err != nil {
		return fmt.Errorf("verifying %s: %w", signatureFile, err)
	}
	return nil
}
