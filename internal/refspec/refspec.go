// Package refspec implements the pure refspec parser (§4.1): completing a
// partial "remote:ref" string against a base refspec.
package refspec

import (
	"strings"

	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
)

// Refspec names a branch in the store: remote:ref, :ref (local branch), or
// remote: (remote switch, ref inherited).
type Refspec struct {
	Remote string // empty for a local branch
	Ref    string
}

// HasRemote reports whether r names a remote.
func (r Refspec) HasRemote() bool { return r.Remote != "" }

// String renders "{remote}:{ref}" when a remote is present, "{ref}" otherwise.
func (r Refspec) String() string {
	if r.Remote == "" {
		return r.Ref
	}
	return r.Remote + ":" + r.Ref
}

// Equal reports value equality between two refspecs.
func (r Refspec) Equal(o Refspec) bool {
	return r.Remote == o.Remote && r.Ref == o.Ref
}

// ParsePartial completes new against base, applying the rules of §4.1 in
// order. It returns InvalidRefspec when new cannot be resolved to a
// complete, distinct refspec.
func ParsePartial(new string, base Refspec) (Refspec, error) {
	var out Refspec

	switch {
	case strings.HasSuffix(new, ":") && !strings.HasPrefix(new, ":"):
		// Rule 1: bare remote, ref inherited from base.
		out.Remote = strings.TrimSuffix(new, ":")
		out.Ref = ""

	case strings.HasPrefix(new, ":"):
		// Rule 2: local branch; no remote is inferred even if base has one.
		out.Remote = ""
		out.Ref = strings.TrimPrefix(new, ":")

	default:
		// Rule 3: must match remote:ref exactly.
		idx := strings.Index(new, ":")
		if idx < 0 {
			return Refspec{}, ostreeerr.New(ostreeerr.InvalidRefspec, "refspec %q must be of the form remote:ref", new)
		}
		out.Remote = new[:idx]
		out.Ref = new[idx+1:]
	}

	// Rule 4: missing ref filled from base.
	if out.Ref == "" {
		if base.Ref == "" {
			return Refspec{}, ostreeerr.New(ostreeerr.InvalidRefspec, "could not determine default ref")
		}
		out.Ref = base.Ref
	}

	// Rule 5: missing remote filled from base, unless rule 2 applied.
	if out.Remote == "" && !strings.HasPrefix(new, ":") {
		out.Remote = base.Remote
	}

	// Rule 6: reject exact equality with base.
	if out.Equal(base) {
		return Refspec{}, ostreeerr.New(ostreeerr.InvalidRefspec, "old and new refs are equal")
	}

	return out, nil
}
