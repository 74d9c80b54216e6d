// Package resolver implements the directory walker and path walker of
// spec §4.C/§4.D: resolving one path component against a directory
// extent (Resolve) and splitting a slash-delimited path to repeatedly
// apply it from a starting directory (Walk).
package resolver

import (
	"strings"

	"github.com/bgrewell/iso9660cd/pkg/cache"
	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/directory"
	"github.com/bgrewell/iso9660cd/pkg/encoding"
	"github.com/bgrewell/iso9660cd/pkg/logging"
)

// Resolver walks directory extents through the inode cache, matching
// entries against a query under whichever naming scheme is active.
type Resolver struct {
	cache     *cache.Cache
	log       *logging.Logger
	rockRidge bool
}

// New creates a Resolver bound to the mount's inode cache. rockRidge
// controls whether Rock Ridge NM records are honored during non-Joliet
// matching (the cdfs.WithRockRidge option); when false, matching falls
// straight through to the raw ISO name comparison as if no NM record
// were present.
func New(c *cache.Cache, rockRidge bool, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.DefaultLogger()
	}
	return &Resolver{cache: c, rockRidge: rockRidge, log: log}
}

// Resolve finds the entry named by query within the directory at
// extent/size (spec §4.C, "find_object"). query is whatever remains of
// the path starting at this component — it may contain a trailing
// "/..." remainder, which the per-scheme comparators tolerate and ignore
// after the matched length. found is false, with a nil error, when no
// entry matches (the path walker treats that as not-found).
func (r *Resolver) Resolve(joliet bool, query string, wantDir bool, extent uint32, size uint32) (entry directory.Entry, found bool, err error) {
	var ucsQuery []byte
	if joliet {
		ucsQuery, err = encoding.EncodeJoliet(query)
		if err != nil {
			return directory.Entry{}, false, err
		}
	}

	remaining := int64(size)
	sector := extent

	for remaining > 0 {
		data, rerr := r.cache.Read(cache.Inode, sector)
		if rerr != nil {
			return directory.Entry{}, false, rerr
		}

		offset := 0
		for offset < consts.SectorSize {
			e, ok, perr := directory.ParseEntry(data, offset)
			if perr != nil {
				return directory.Entry{}, false, perr
			}
			if !ok {
				// Zero length: no more entries in this sector.
				break
			}
			if !r.rockRidge {
				e.SystemUse = nil
			}

			var matched bool
			if joliet {
				matched = e.MatchJoliet(ucsQuery)
			} else {
				matched = e.MatchNonJoliet(query)
			}

			if matched && e.MatchesKind(wantDir) {
				r.log.Trace("resolver: match", "query", query, "extent", e.Extent)
				return e, true, nil
			}

			offset += int(e.Length)
		}

		sector++
		remaining -= consts.SectorSize
	}

	return directory.Entry{}, false, nil
}

// Walk splits path on '/' and repeatedly applies Resolve starting from
// root (spec §4.D). A leading '/' produces a zero-length first
// component, which is skipped. When no path remains: the request
// resolves to the current directory entry if and only if wantDir is
// true; otherwise it is not-found.
func (r *Resolver) Walk(joliet bool, path string, wantDir bool, root directory.Entry) (entry directory.Entry, found bool, err error) {
	current := root
	remaining := path

	for {
		idx := strings.IndexByte(remaining, '/')
		if idx < 0 {
			if remaining == "" {
				if !wantDir {
					return directory.Entry{}, false, nil
				}
				return current, true, nil
			}
			return r.Resolve(joliet, remaining, wantDir, current.Extent, current.Size)
		}

		prefix := remaining[:idx]
		if prefix == "" {
			remaining = remaining[idx+1:]
			continue
		}

		next, ok, rerr := r.Resolve(joliet, remaining, true, current.Extent, current.Size)
		if rerr != nil || !ok {
			return directory.Entry{}, false, rerr
		}
		current = next
		remaining = remaining[idx+1:]
	}
}
