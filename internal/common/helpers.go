package common

func ToPtr[T any](x T) *T {
	return &x
}

// Dedup returns the elements of s in their original order with later
// duplicates removed.
func Dedup[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
