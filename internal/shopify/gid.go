package shopify

import (
	"fmt"
	"strconv"
	"strings"
)

// Product and variant ids reach this service in two shapes: the GraphQL GID
// ("gid://shopify/Product/123") and the bare numeric string ("123").

// NumericID extracts the trailing numeric id from either shape.
func NumericID(id string) (int64, error) {
	trimmed := strings.TrimSpace(id)
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a shopify id: %q", id)
	}
	return n, nil
}

// IDCandidates returns the lookup keys to try for an incoming id, most
// specific first. Storage may hold either shape depending on which surface
// wrote the row, so reads try both.
func IDCandidates(kind, id string) []string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "gid://") {
		if n, err := NumericID(trimmed); err == nil {
			return []string{trimmed, strconv.FormatInt(n, 10)}
		}
		return []string{trimmed}
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return []string{trimmed, fmt.Sprintf("gid://shopify/%s/%d", kind, n)}
	}
	return []string{trimmed}
}
