package logging

import (
	"io"
	"log"
	"os"
)

// DebugEnabled controls whether Debug/Debugf/Debugln calls produce output. It
// is set once at startup based on the TREESYNC_DEBUG environment variable.
var DebugEnabled bool

func init() {
	// Set the global logger to use standard output.
	log.SetOutput(os.Stdout)

	DebugEnabled = os.Getenv("TREESYNC_DEBUG") == "1"
}

// SetOutput redirects every Logger's output to both standard output and w,
// used by the --log FILE flag to tee operation output into a file without
// silencing the console.
func SetOutput(w io.Writer) {
	log.SetOutput(io.MultiWriter(os.Stdout, w))
}
