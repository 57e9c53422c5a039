package channel

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeApplicationServerKey converts a base64url-encoded VAPID public key
// into the byte array handed to the platform as applicationServerKey.
//
// Push-service key material is distributed unpadded; standard decoding
// requires restoring '=' padding to a multiple of 4 after substituting
// '-' with '+' and '_' with '/'.
func DecodeApplicationServerKey(key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("application server key is empty")
	}

	s := strings.ReplaceAll(key, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode application server key: %w", err)
	}
	return raw, nil
}

// EncodeApplicationServerKey is the inverse of DecodeApplicationServerKey:
// unpadded base64url, the form push services distribute keys in.
func EncodeApplicationServerKey(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
