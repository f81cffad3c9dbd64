// Package users resolves source-tracker identities (Bugzilla emails,
// Phabricator PHIDs) to display identities, preferring a matching
// GitLab account, falling back to the source tracker's profile, and
// finally to a redacted placeholder. Resolutions are memoized for the
// run so no key is looked up over the network twice.
package users

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// User is a resolved identity. Username and GitLabID are zero when the
// identity has no matching GitLab account.
type User struct {
	Email    string
	RealName string
	Username string
	GitLabID int
}

// DisplayName renders the identity for markdown: real name plus the
// GitLab @-handle in backticks when an account exists, the bare real
// name otherwise, and a redacted fragment of the key when nothing is
// known. The full email is never exposed.
func (u *User) DisplayName() string {
	if u.Username != "" {
		if u.RealName != "" {
			return u.RealName + " `@" + u.Username + "`"
		}
		return "`@" + u.Username + "`"
	}
	if u.RealName != "" {
		return u.RealName
	}
	return redact(u.Email)
}

func redact(email string) string {
	head, tail := 3, 6
	if len(email) < head+tail {
		head, tail = 1, 1
	}
	if len(email) < head+tail {
		return "..@.."
	}
	return fmt.Sprintf("%s..@..%s", email[:head], email[len(email)-tail:])
}

// Account is a target-tracker account as seen by the resolver.
type Account struct {
	ID       int
	Username string
	Name     string
}

// TargetDirectory searches the target tracker's user directory.
// FindByEmail returns nil when no account (or more than one account)
// has the given verified email.
type TargetDirectory interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// SourceDirectory fetches user profiles from the source tracker.
// RealName returns "" when the profile has no display name.
type SourceDirectory interface {
	RealName(ctx context.Context, key string) (string, error)
}

// NoSource is a SourceDirectory for backends that preload every
// identity up front and never look one up lazily.
type NoSource struct{}

func (NoSource) RealName(context.Context, string) (string, error) { return "", nil }

// noiseSuffixPattern strips the "(not reading bugmail)" and
// "(not receiving bugmail)" annotations people append to their names.
var noiseSuffixPattern = regexp.MustCompile(` \(not .+ing bugmail\)`)

// Cache memoizes identity resolution for one migration run. Not safe
// for concurrent use; the migration is strictly sequential.
type Cache struct {
	target TargetDirectory
	source SourceDirectory

	// placeholderSuffixes mark tracker-internal non-identities such as
	// the per-component default-owner addresses; they resolve to nil,
	// which renders as unassigned.
	placeholderSuffixes []string

	memo      map[string]*User
	persisted *PersistedCache
}

// NewCache creates a resolver cache backed by the two directories.
func NewCache(target TargetDirectory, source SourceDirectory) *Cache {
	return &Cache{
		target:              target,
		source:              source,
		placeholderSuffixes: []string{"gnome.bugs"},
		memo:                make(map[string]*User),
	}
}

// WithPlaceholderSuffixes overrides the suffixes treated as "no such
// user" placeholders.
func (c *Cache) WithPlaceholderSuffixes(suffixes []string) *Cache {
	c.placeholderSuffixes = suffixes
	return c
}

// WithPersisted attaches a cross-run persisted cache, consulted before
// any network lookup. The persisted file maps emails to GitLab
// accounts and is sensitive; callers must warn the operator to delete
// it after use.
func (c *Cache) WithPersisted(p *PersistedCache) *Cache {
	c.persisted = p
	return c
}

// Resolve maps a source identity key to a display identity. A nil
// result (with nil error) means the key is a tracker placeholder and
// the issue renders as unassigned.
func (c *Cache) Resolve(ctx context.Context, key string) (*User, error) {
	if key == "" {
		return nil, nil
	}
	for _, suffix := range c.placeholderSuffixes {
		if strings.HasSuffix(key, suffix) {
			return nil, nil
		}
	}

	if u, ok := c.memo[key]; ok {
		return u, nil
	}

	u, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	c.memo[key] = u
	if c.persisted != nil && u.GitLabID != 0 {
		c.persisted.Put(key, Account{ID: u.GitLabID, Username: u.Username, Name: u.RealName})
	}
	return u, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (*User, error) {
	if c.persisted != nil {
		if acct, ok := c.persisted.Get(key); ok {
			return &User{Email: key, RealName: acct.Name, Username: acct.Username, GitLabID: acct.ID}, nil
		}
	}

	acct, err := c.target.FindByEmail(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("searching target directory for %q: %w", key, err)
	}
	if acct != nil {
		return &User{Email: key, RealName: acct.Name, Username: acct.Username, GitLabID: acct.ID}, nil
	}

	realName, err := c.source.RealName(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching source profile for %q: %w", key, err)
	}
	realName = noiseSuffixPattern.ReplaceAllString(realName, "")

	return &User{Email: key, RealName: realName}, nil
}

// Preload seeds the memo with an already-resolved identity. Used by
// the Phabricator backend, which downloads its whole user directory in
// one query instead of resolving keys lazily.
func (c *Cache) Preload(key string, u *User) {
	c.memo[key] = u
}
