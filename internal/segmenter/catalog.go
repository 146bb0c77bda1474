package segmenter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Catalog assigns identities to fragments and tracks what has been
// published. Media fragments get strictly increasing integers from zero,
// never reused or skipped within a session; the initialization fragment
// lives under a fixed, non-numeric name outside the series. Entries are
// immutable once committed and removed only by a full Reset.
type Catalog struct {
	dir      string
	prefix   string
	initName string
	ext      string

	mu        sync.RWMutex
	next      int64
	published map[int64]FragmentInfo
	init      *FragmentInfo
}

// NewCatalog returns a catalog publishing into dir, naming media fragments
// prefix+N+ext and the initialization fragment initName.
func NewCatalog(dir, prefix, initName, ext string) *Catalog {
	return &Catalog{
		dir:       dir,
		prefix:    prefix,
		initName:  initName,
		ext:       ext,
		published: make(map[int64]FragmentInfo),
	}
}

// Dir returns the directory fragments are published into.
func (c *Catalog) Dir() string { return c.dir }

// NextIdentity hands out the next media-fragment identity. Called exactly
// once per produced fragment, in production order.
func (c *Catalog) NextIdentity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	return id
}

// release hands an identity back after a failed cut so the series stays
// gap-free. Only the most recently issued identity can be released; a stale
// release is ignored.
func (c *Catalog) release(identity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if identity == c.next-1 {
		c.next = identity
	}
}

// MediaName returns the deterministic filename for identity.
func (c *Catalog) MediaName(identity int64) string {
	return c.prefix + strconv.FormatInt(identity, 10) + c.ext
}

// InitName returns the fixed initialization-fragment filename.
func (c *Catalog) InitName() string { return c.initName }

// CreateMedia creates the (empty) destination file for a media fragment.
// The entry is not visible in the catalog until CommitMedia.
func (c *Catalog) CreateMedia(identity int64) (*os.File, error) {
	return os.Create(filepath.Join(c.dir, c.MediaName(identity)))
}

// CommitMedia records a finished media fragment of the given size.
func (c *Catalog) CommitMedia(identity, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.published[identity] = FragmentInfo{
		Identity:    identity,
		Name:        c.MediaName(identity),
		Size:        size,
		PublishedAt: time.Now().UTC(),
	}
}

// CreateInit creates the destination file for the initialization fragment.
func (c *Catalog) CreateInit() (*os.File, error) {
	return os.Create(filepath.Join(c.dir, c.initName))
}

// DiscardInit removes an initialization file created for a cut attempt that
// found no boundary yet.
func (c *Catalog) DiscardInit() error {
	err := os.Remove(filepath.Join(c.dir, c.initName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CommitInit records the finished initialization fragment.
func (c *Catalog) CommitInit(size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.init = &FragmentInfo{
		Identity:    InitIdentity,
		Name:        c.initName,
		Size:        size,
		PublishedAt: time.Now().UTC(),
	}
}

// Lookup resolves a published fragment name to its on-disk path. Only names
// the catalog has committed are resolvable, so the serving layer can never
// be walked outside the fragment directory.
func (c *Catalog) Lookup(name string) (path string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.init != nil && name == c.init.Name {
		return filepath.Join(c.dir, name), true
	}
	for _, info := range c.published {
		if info.Name == name {
			return filepath.Join(c.dir, name), true
		}
	}
	return "", false
}

// Snapshot returns the committed media fragments sorted by identity, plus
// the initialization fragment (nil if not yet produced). The returned slice
// is a copy.
func (c *Catalog) Snapshot() (media []FragmentInfo, init *FragmentInfo) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	media = make([]FragmentInfo, 0, len(c.published))
	for _, info := range c.published {
		media = append(media, info)
	}
	sort.Slice(media, func(i, j int) bool { return media[i].Identity < media[j].Identity })

	if c.init != nil {
		cp := *c.init
		init = &cp
	}
	return media, init
}

// Reset deletes every published fragment (including the initialization
// fragment) and rewinds the identity counter to zero. A failure to delete
// blocks the next session and is surfaced.
func (c *Catalog) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, info := range c.published {
		if err := os.Remove(filepath.Join(c.dir, info.Name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove fragment %s: %w", info.Name, err)
		}
	}
	if c.init != nil {
		if err := os.Remove(filepath.Join(c.dir, c.init.Name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove init fragment: %w", err)
		}
	}

	c.published = make(map[int64]FragmentInfo)
	c.init = nil
	c.next = 0
	return nil
}
