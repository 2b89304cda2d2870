package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalHash hashes the canonical JSON encoding of v: Go's encoding/json already sorts map keys, so the
// only extra step needed for determinism is re-marshalling through an untyped map so field order and
// whitespace never leak in (§4.8 "H(canonicalJSON(resource))").
func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var generic any
	if err = json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
