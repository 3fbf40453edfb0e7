package microdesc

import (
	"crypto/sha256"
	"fmt"
)

func sha256Of(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func errMissingToken(token string) error {
	return fmt.Errorf("missing token: %s", token)
}

func errMalformed(what string) error {
	return fmt.Errorf("malformed: %s", what)
}
