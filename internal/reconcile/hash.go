package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/redth/npm-docker-sync/internal/label"
)

// labelHash computes a deterministic hash over every label key carrying the reserved prefix, so
// unrelated label churn never triggers a reconcile and identical label sets always hash identically
// regardless of map iteration order (§4.5 step 1, §8 "deterministic").
func labelHash(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		if strings.HasPrefix(k, label.Prefix+".") || strings.HasPrefix(k, label.Prefix+"-") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
		sb.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
