package classifier

import (
	"bufio"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	lmkderrors "lmkd-go/errors"
)

// MaxTaskNameLen is the longest exemption name the config grammar accepts,
// carried over from the source's MAX_TASK_NAME.
const MaxTaskNameLen = 99

// ExemptionList is an immutable, name-based immunity set loaded once at
// startup. Membership exempts a task from timeout kills regardless of its
// idle time.
type ExemptionList struct {
	names map[string]struct{}
}

// Contains reports whether name is in the exemption set.
func (e *ExemptionList) Contains(name string) bool {
	if e == nil {
		return false
	}
	_, ok := e.names[name]
	return ok
}

// Len returns the number of exempted names.
func (e *ExemptionList) Len() int {
	if e == nil {
		return 0
	}
	return len(e.names)
}

// DebugDump logs each exempted name at debug level, mirroring the source's
// DEBUG-gated print_exemption_list. Intended to be called once at startup,
// right after LoadExemptions.
func (e *ExemptionList) DebugDump(logger *slog.Logger) {
	if e == nil {
		return
	}
	logger.Debug("exemption list", "count", len(e.names))
	for name := range e.names {
		logger.Debug("exempted task", "name", name)
	}
}

// LoadExemptions parses the config file at path line by line. Lines
// beginning with '#' are comments. A line matching "exemption <NAME>"
// adds NAME (whitespace-delimited, truncated to MaxTaskNameLen) to the
// set; any other line is silently ignored. A missing config file is not
// an error — the exemption set is simply empty, matching the source's
// fopen-failure-is-non-fatal behavior.
func LoadExemptions(fs afero.Fs, path string) (*ExemptionList, error) {
	e := &ExemptionList{names: make(map[string]struct{})}

	f, err := fs.Open(path)
	if err != nil {
		return e, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "exemption" {
			continue
		}

		name := fields[1]
		if len(name) > MaxTaskNameLen {
			name = name[:MaxTaskNameLen]
		}
		e.names[name] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrInvalidConfig, "load_exemptions")
	}

	return e, nil
}
