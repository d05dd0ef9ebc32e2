// Package export manages the crops in an output directory: listing, deleting
// and packing them into archives.
package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// ErrInvalidName is returned for names that are not plain filenames.
var ErrInvalidName = errors.New("invalid output name")

// Entry is a crop in the output directory.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func isCrop(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// List returns the crops in dir in natural name order. A missing directory has
// no crops.
func List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %q err, %w", dir, err)
	}
	var entries []Entry
	for _, de := range des {
		if !de.Type().IsRegular() || !isCrop(de.Name()) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: de.Name(), Size: fi.Size()})
	}
	sort.Slice(entries, func(i, j int) bool { return natural.Less(entries[i].Name, entries[j].Name) })
	return entries, nil
}

// Delete removes the named crops from dir and returns the names that were
// deleted. Names that do not exist are skipped; names with path elements are
// rejected before anything is removed.
func Delete(dir string, names []string) ([]string, error) {
	for _, n := range names {
		if n == "" || n != filepath.Base(n) || n == "." || n == ".." || strings.ContainsAny(n, `/\`) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
		if !isCrop(n) {
			return nil, fmt.Errorf("%w: %q is not a crop", ErrInvalidName, n)
		}
	}
	var deleted []string
	for _, n := range names {
		err := os.Remove(filepath.Join(dir, n))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("delete %q err, %w", n, err)
		}
		deleted = append(deleted, n)
	}
	return deleted, nil
}
