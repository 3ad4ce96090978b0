package engine

import (
	"errors"
	"fmt"
	"strings"
)

// DeterminismError reports that two replays of the same calls diverged.
type DeterminismError struct {
	// Digests are the snapshot digests of the two runs.
	Digests [2]string

	// Divergences lists per-call or per-record differences.
	Divergences []string
}

// Error implements the error interface.
func (e *DeterminismError) Error() string {
	msg := fmt.Sprintf("replay diverged: digest %s != %s", short(e.Digests[0]), short(e.Digests[1]))
	if len(e.Divergences) > 0 {
		msg += ": " + strings.Join(e.Divergences, "; ")
	}
	return msg
}

// IsDeterminismError returns true if err is a DeterminismError.
// Uses errors.As to handle wrapped errors.
func IsDeterminismError(err error) bool {
	var de *DeterminismError
	return errors.As(err, &de)
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
