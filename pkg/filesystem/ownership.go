package filesystem

import (
	"os/user"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// OwnershipSpecification encodes a (possibly partial) owner/group to apply to
// a filesystem entry. A value of -1 for either component indicates that the
// component should be left unset, per the POSIX definition of chown.
type OwnershipSpecification struct {
	ownerID int
	groupID int
}

// isValidPOSIXID reports whether value looks like a POSIX numeric user or
// group ID (no leading zero padding, except for "0" itself).
func isValidPOSIXID(value string) bool {
	if len(value) == 0 {
		return false
	}
	if value == "0" {
		return true
	}
	for i, r := range value {
		if i == 0 {
			if r < '1' || r > '9' {
				return false
			}
		} else if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NewOwnershipSpecification parses owner and group specifications (either a
// "id:<n>" numeric form or a bare user/group name) and resolves them to
// system-level identifiers. An empty string leaves the corresponding
// component unset.
func NewOwnershipSpecification(owner, group string) (*OwnershipSpecification, error) {
	ownerID, err := resolveIdentifier(owner, false)
	if err != nil {
		return nil, errors.Wrap(err, "invalid owner specification")
	}
	groupID, err := resolveIdentifier(group, true)
	if err != nil {
		return nil, errors.Wrap(err, "invalid group specification")
	}
	return &OwnershipSpecification{ownerID: ownerID, groupID: groupID}, nil
}

// resolveIdentifier resolves a single owner or group specification to a
// numeric ID, returning -1 if the specification is empty.
func resolveIdentifier(specification string, isGroup bool) (int, error) {
	if specification == "" {
		return -1, nil
	}

	identifier := specification
	if strings.HasPrefix(specification, "id:") {
		identifier = specification[3:]
		if !isValidPOSIXID(identifier) {
			return -1, errors.New("malformed numeric identifier")
		}
	}

	if isValidPOSIXID(identifier) && strings.HasPrefix(specification, "id:") {
		if isGroup {
			if _, err := user.LookupGroupId(identifier); err != nil {
				return -1, errors.Wrap(err, "unable to look up group by ID")
			}
		} else if _, err := user.LookupId(identifier); err != nil {
			return -1, errors.Wrap(err, "unable to look up user by ID")
		}
		return strconv.Atoi(identifier)
	}

	if isGroup {
		g, err := user.LookupGroup(identifier)
		if err != nil {
			return -1, errors.Wrap(err, "unable to look up group by name")
		}
		return strconv.Atoi(g.Gid)
	}
	u, err := user.Lookup(identifier)
	if err != nil {
		return -1, errors.Wrap(err, "unable to look up user by name")
	}
	return strconv.Atoi(u.Uid)
}
