// Package runid generates short, collision-resistant identifiers used to
// tag a single treesync run's log lines, so that multiple runs appending to
// the same --log file can be told apart.
package runid

import (
	"encoding/hex"

	"github.com/treesync/treesync/pkg/random"
)

// length is the number of random bytes used to build an identifier; 8 bytes
// (16 hex characters) is far more than treesync needs for a human-readable
// log tag, but collision-resistance here is cheap.
const length = 8

// New generates a new identifier of the form "run-xxxxxxxxxxxxxxxx".
func New() (string, error) {
	data, err := random.New(length)
	if err != nil {
		return "", err
	}
	return "run-" + hex.EncodeToString(data), nil
}
