package binary

import (
	lru "github.com/hashicorp/golang-lru"
	"gitlab.com/tozd/go/errors"
)

const DefaultCacheSize = 512

// FileKey names a file as the target process sees it. Path is the
// mapping's path inside the target's mount namespace, so the same library
// mapped by two processes shares a key.
type FileKey struct {
	Path  string
	Dev   string
	Inode uint64
}

// Resolver identifies modules and remembers identities read from disk, so
// repeated dumps of processes sharing libraries open each file once. It
// is safe for concurrent use.
type Resolver struct {
	cache *lru.Cache
}

func NewResolver(size int) (*Resolver, errors.E) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Resolver{cache: c}, nil
}

// Resolve tries, in order: the GNU build id note of the image mapped at
// base, the note in the file, and a hash of the file's .text. The in
// memory note is always read fresh. File results are cached under key
// and read from open, the path the dumper can reach the file by (for
// another mount namespace, through /proc/<pid>/root). An empty open
// means key.Path. Either mem or key.Path may be empty.
func (r *Resolver) Resolve(mem Memory, base uint64, key FileKey, open string) (*Identity, errors.E) {
	var errs []error
	if mem != nil {
		id, err := IdentifyMemory(mem, base)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if key.Path == "" {
		return nil, notFound(errs)
	}
	if v, ok := r.cache.Get(key); ok {
		return v.(*Identity), nil
	}
	if open == "" {
		open = key.Path
	}
	id, err := IdentifyFile(open)
	if err != nil {
		return nil, notFound(append(errs, err))
	}
	r.cache.Add(key, id)
	return id, nil
}

func notFound(errs []error) errors.E {
	if len(errs) == 0 {
		return errors.WithStack(ErrBuildIDNotFound)
	}
	return errors.Join(append([]error{ErrBuildIDNotFound}, errs...)...)
}

// Len is the number of cached file identities.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
