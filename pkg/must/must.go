// Package must provides best-effort wrappers around operations whose errors
// are worth logging but not worth propagating, typically because they occur
// during cleanup or in a code path that's already unwinding from a more
// important error.
package must

import (
	"fmt"
	"io"
	"os"

	"github.com/treesync/treesync/pkg/logging"
)

// Fprint performs a best-effort fmt.Fprint, logging (rather than returning)
// any error or short write.
func Fprint(w io.Writer, logger *logging.Logger, a ...any) {
	s := fmt.Sprint(a...)
	n, err := fmt.Fprint(w, s)
	if err != nil {
		logger.Warnf("unable to write '%s': %s", s, err.Error())
	} else if n < len(s) {
		logger.Warnf("unable to write all of '%s'; wrote only %d of %d bytes", s, n, len(s))
	}
}

// Close closes c, logging rather than returning any error. This is the
// correct way to close a reader/writer in a defer when the operation has
// already succeeded and only cleanup remains.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove performs a best-effort os.Remove, logging rather than returning
// any error. It's typically used to clean up a temporary file after a
// failure earlier in the same operation.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}

// IOCopy performs a best-effort io.Copy, logging rather than returning any
// error.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warnf("unable to copy: %s", err.Error())
	}
}

// Encode performs a best-effort call to an Encode method (such as that of a
// json.Encoder), logging rather than returning any error.
func Encode(e interface{ Encode(v any) error }, value any, logger *logging.Logger) {
	if err := e.Encode(value); err != nil {
		logger.Warnf("unable to encode %v: %s", value, err.Error())
	}
}

// Succeed logs err (if non-nil) as a failure to complete task, without
// propagating it. It's used for operations, such as metadata application
// after a successful write, whose failure shouldn't fail the larger
// operation but is still worth surfacing.
func Succeed(err error, task string, logger *logging.Logger) {
	if err != nil {
		logger.Warnf("unable to %s: %s", task, err.Error())
	}
}
