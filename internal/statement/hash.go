package statement

import (
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// hashSep separates field values in the hash input so that ("ab","c") and
// ("a","bc") hash differently.
const hashSep = "\x1f"

// Hash63 returns a non-negative 63-bit hash of vals. nil hashes as the empty
// string; times are formatted as RFC 3339 with nanoseconds.
func Hash63(vals ...any) int64 {
	h := xxh3.New()
	for i, v := range vals {
		if i > 0 {
			_, _ = h.WriteString(hashSep)
		}
		_, _ = h.WriteString(hashText(v))
	}
	return int64(h.Sum64() >> 1)
}

func hashText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
