package record

import "fmt"

// CollisionError reports a key defined by both sides of a merge.
type CollisionError struct {
	Key string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("key collision: %s exists in initial record", e.Key)
}

// Merge copies every key of addition into base. A key already present in
// base is a collision unless it is listed in allowed, in which case it is
// overwritten. On collision base is returned untouched.
func Merge(base, addition Record, allowed ...string) error {
	for k := range addition {
		if _, exists := base[k]; exists && !contains(allowed, k) {
			return &CollisionError{Key: k}
		}
	}
	for k, v := range addition {
		base[k] = v
	}
	return nil
}

func contains(list []string, key string) bool {
	for _, item := range list {
		if item == key {
			return true
		}
	}
	return false
}
