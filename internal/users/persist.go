package users

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// PersistedCache is the optional on-disk email-to-account map used to
// avoid re-downloading the target user directory on every run. The
// file maps real emails to account ids and is sensitive: operators are
// warned to delete it after the migration finishes.
type PersistedCache struct {
	path    string
	entries map[string]Account
	dirty   bool
}

// LoadPersistedCache reads the cache file at path, returning an empty
// cache when the file does not exist yet.
func LoadPersistedCache(path string) (*PersistedCache, error) {
	p := &PersistedCache{path: path, entries: make(map[string]Account)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user cache %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p.entries); err != nil {
		return nil, fmt.Errorf("parsing user cache %s: %w", path, err)
	}
	return p, nil
}

// Get returns the cached account for an email, if any.
func (p *PersistedCache) Get(email string) (Account, bool) {
	acct, ok := p.entries[email]
	return acct, ok
}

// Put records a resolved account. The entry is written out on Save.
func (p *PersistedCache) Put(email string, acct Account) {
	if existing, ok := p.entries[email]; ok && existing == acct {
		return
	}
	p.entries[email] = acct
	p.dirty = true
}

// Save writes the cache back to disk if anything changed. The file is
// created owner-readable only, since it maps real emails to accounts.
func (p *PersistedCache) Save() error {
	if !p.dirty {
		return nil
	}
	data, err := yaml.Marshal(p.entries)
	if err != nil {
		return fmt.Errorf("encoding user cache: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("writing user cache %s: %w", p.path, err)
	}
	p.dirty = false
	return nil
}

// Path returns the location of the cache file.
func (p *PersistedCache) Path() string {
	return p.path
}
