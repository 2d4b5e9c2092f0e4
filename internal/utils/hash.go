package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var rowNamespace = uuid.MustParse("6f1c2a52-3b8e-4c4e-9d7e-1b8a3f0e2d11")

// StableID derives a deterministic row id from the identifying fields of a
// row, so that refetching the same data upserts instead of duplicating.
func StableID(parts ...any) string {
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case nil:
			keys = append(keys, "")
		case time.Time:
			keys = append(keys, v.UTC().Format(time.RFC3339))
		case *time.Time:
			if v == nil {
				keys = append(keys, "")
			} else {
				keys = append(keys, v.UTC().Format(time.RFC3339))
			}
		default:
			keys = append(keys, fmt.Sprint(v))
		}
	}
	return uuid.NewSHA1(rowNamespace, []byte(strings.Join(keys, "\x1f"))).String()
}
