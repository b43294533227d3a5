// Package store resolves where dialectic keeps its learning state.
package store

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvStore names the environment variable consulted by ResolveStore.
const EnvStore = "DIALECTIC_STORE"

// DefaultStoreID is used when nothing else selects a store.
const DefaultStoreID = "default"

// ErrInvalidStoreID indicates the store ID format is invalid.
var ErrInvalidStoreID = errors.New("invalid store ID: must be lowercase alphanumeric with hyphens, 1-4 path segments")

// 1-4 "/"-separated segments of lowercase alphanumerics and inner hyphens, each 1-64 long.
var storeIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?(\/[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?){0,3}$`)

// ValidateStoreID checks a store ID's format.
func ValidateStoreID(id string) error {
	if id == "" || len(id) > 256 {
		return ErrInvalidStoreID
	}
	if strings.Contains(id, "--") {
		return ErrInvalidStoreID
	}
	if !storeIDRegex.MatchString(id) {
		return ErrInvalidStoreID
	}
	return nil
}

// ResolveStore picks the store ID: explicit > DIALECTIC_STORE > "default".
func ResolveStore(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateStoreID(explicit); err != nil {
			return "", fmt.Errorf("invalid store ID %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv(EnvStore); env != "" {
		if err := ValidateStoreID(env); err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", EnvStore, env, err)
		}
		return env, nil
	}

	return DefaultStoreID, nil
}
