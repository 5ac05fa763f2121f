// Package metadata applies a configurable subset of a source entry's
// link-metadata (timestamps, permission bits, ownership) to a destination
// entry after its bytes (or, for a symlink, the link itself) already exist
// on disk.
package metadata

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/treesync/treesync/pkg/filesystem"
	"github.com/treesync/treesync/pkg/logging"
)

// Fields is a bitset selecting which metadata categories to copy, parsed
// from the letters D (data), A (attrs), T (times), S (security), O (owner),
// U (audit).
type Fields uint8

const (
	Data Fields = 1 << iota
	Attrs
	Times
	Security
	Owner
	Audit
)

// DefaultFields is the default copy-flags selection, "DAT".
const DefaultFields = Data | Attrs | Times

// Has reports whether f includes every field set in other.
func (f Fields) Has(other Fields) bool {
	return f&other == other
}

// ParseFields parses a copy-flag string such as "DATSOU" into a Fields
// bitset. Unknown letters are rejected; an empty string yields zero fields.
func ParseFields(flags string) (Fields, error) {
	var f Fields
	for _, r := range flags {
		switch r {
		case 'D':
			f |= Data
		case 'A':
			f |= Attrs
		case 'T':
			f |= Times
		case 'S':
			f |= Security
		case 'O':
			f |= Owner
		case 'U':
			f |= Audit
		default:
			return 0, errors.Errorf("unknown copy flag %q", r)
		}
	}
	return f, nil
}

// Source describes the source-side metadata to apply, gathered by the
// caller from a scan.Entry plus whatever raw stat information it retained.
type Source struct {
	ModTime     time.Time
	Permissions os.FileMode
	OwnerID     int
	GroupID     int
	IsSymlink   bool
}

// Copier applies Fields-selected metadata to destination paths. It holds a
// sync.Once so the Audit no-op warns exactly once per run, never per file.
type Copier struct {
	fields    Fields
	logger    *logging.Logger
	auditOnce sync.Once
}

// NewCopier constructs a Copier for the given field selection.
func NewCopier(fields Fields, logger *logging.Logger) *Copier {
	return &Copier{fields: fields, logger: logger}
}

// Apply copies the selected metadata fields from source onto the entry
// named name inside destinationDir. Data is the caller's responsibility
// (bytes must already be written); Apply only ever touches attributes. For
// symbolic links, permission bits don't apply to the link itself, so only
// ownership and times are attempted even when Security is selected.
func (c *Copier) Apply(destinationDir *filesystem.Directory, name string, source Source) error {
	if c.fields.Has(Audit) {
		c.warnAuditUnsupported()
	}

	var ownership *filesystem.OwnershipSpecification
	if c.fields.Has(Owner) {
		spec, err := filesystem.NewOwnershipSpecification(idSpec(source.OwnerID), idSpec(source.GroupID))
		if err != nil {
			return errors.Wrap(err, "unable to resolve ownership specification")
		}
		ownership = spec
	}

	var mode filesystem.Mode
	if c.fields.Has(Security) && !source.IsSymlink {
		mode = filesystem.Mode(source.Permissions.Perm())
	}

	if ownership != nil || mode != 0 {
		if err := destinationDir.SetPermissions(name, ownership, mode); err != nil {
			return errors.Wrap(err, "unable to apply ownership or permissions")
		}
	}

	if c.fields.Has(Times) && !source.ModTime.IsZero() {
		if err := destinationDir.SetModificationTime(name, source.ModTime); err != nil {
			return errors.Wrap(err, "unable to apply modification time")
		}
	}

	return nil
}

// warnAuditUnsupported logs a single process-lifetime warning that Audit
// metadata copying is a no-op on this platform.
func (c *Copier) warnAuditUnsupported() {
	c.auditOnce.Do(func() {
		c.logger.Warnf("audit metadata copying is not supported and will be skipped")
	})
}

// idSpec converts a numeric ID into the "id:<n>" form NewOwnershipSpecification
// accepts, or the empty string (leave unset) for a negative ID.
func idSpec(id int) string {
	if id < 0 {
		return ""
	}
	return "id:" + strconv.Itoa(id)
}
