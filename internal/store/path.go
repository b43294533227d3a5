package store

import (
	"os"
	"path/filepath"
	"strings"
)

// DBFileName is the SQLite database file inside a store directory.
const DBFileName = "learning.db"

// DefaultStoreRoot returns the root directory holding every store.
// Defaults to ~/.dialectic/stores, or ./.dialectic/stores without a home directory.
func DefaultStoreRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".dialectic", "stores")
	}
	return filepath.Join(home, ".dialectic", "stores")
}

// EncodeStorePath makes a store ID safe for use as one directory name.
// "/" becomes "__".
func EncodeStorePath(storeID string) string {
	return strings.ReplaceAll(storeID, "/", "__")
}

// DecodeStorePath reverses EncodeStorePath.
func DecodeStorePath(encoded string) string {
	return strings.ReplaceAll(encoded, "__", "/")
}

// StoreDir returns the directory for a store under root.
// An empty root means DefaultStoreRoot.
//
//	StoreDir("", "org/team") -> ~/.dialectic/stores/org__team
func StoreDir(root, storeID string) string {
	if root == "" {
		root = DefaultStoreRoot()
	}
	return filepath.Join(root, EncodeStorePath(storeID))
}

// StoreDBPath returns the SQLite database path for a store under root.
func StoreDBPath(root, storeID string) string {
	return filepath.Join(StoreDir(root, storeID), DBFileName)
}

// ListStores returns the IDs of the stores found under root, sorted by directory name.
// A missing root yields no stores.
func ListStores(root string) ([]string, error) {
	if root == "" {
		root = DefaultStoreRoot()
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, DecodeStorePath(e.Name()))
		}
	}
	return ids, nil
}
