package eth

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
)

// ErrStateUnavailable is returned when the node no longer holds the state of the requested block,
// e.g. a full node queried for a block older than its pruning window.
var ErrStateUnavailable = errors.New("state unavailable")

var (
	notFoundHints = []string{"block not found", "header not found", "unknown block"}
	prunedHints   = []string{"missing trie node", "historical state", "state not available", "state is not available"}
)

// MaybeAsNotFoundErr checks if the error is an ethereum.NotFound error
// or has an error string that heuristically indicates that it is this error.
// If so, the returned error also matches ethereum.NotFound.
func MaybeAsNotFoundErr(err error) error {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return err
	}
	if containsAny(err.Error(), notFoundHints) {
		return errors.Join(err, ethereum.NotFound)
	}
	return err
}

// MaybeAsStateUnavailableErr marks errors of nodes that pruned the requested state with ErrStateUnavailable.
func MaybeAsStateUnavailableErr(err error) error {
	if err == nil || errors.Is(err, ErrStateUnavailable) {
		return err
	}
	if containsAny(err.Error(), prunedHints) {
		return errors.Join(err, ErrStateUnavailable)
	}
	return err
}

func containsAny(msg string, hints []string) bool {
	msg = strings.ToLower(msg)
	for _, h := range hints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}
