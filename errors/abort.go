package errors

import (
	"fmt"
	"os"
	"time"
)

// Abort prints a fatal diagnostic to stderr, prefixed with prog and a
// [sec.nsec] timestamp, and terminates the process with exit code 1.
//
// This is the Go analogue of the source's pabort()/print_timestamp():
// infrastructure failures (missing /proc, a broken mount, a cgroup setup
// error) have no local recovery, so the daemon logs why and exits rather
// than limping along in a half-initialized state.
func Abort(prog, op string, err error) {
	now := time.Now()
	fmt.Fprintf(os.Stderr, "%s: [%d.%09d] %s: %v\n",
		prog, now.Unix(), now.Nanosecond(), op, err)
	os.Exit(1)
}
