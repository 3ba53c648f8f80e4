package guard

import (
	"github.com/victornm/exam/internal/errors"
)

type Entity string

const (
	EntityExam     Entity = "exam"
	EntityQuestion Entity = "question"
)

// VersionConflict reports a lost update: the stored version moved past the one the caller read.
func VersionConflict(entity Entity, id string, current, expected int) *errors.Error {
	return errors.New(errors.CodeAborted,
		errors.WithMessagef("%s was modified concurrently: id=%s current_version=%d expected_version=%d", entity, id, current, expected),
		errors.WithDetails(map[string]any{
			"entity":           string(entity),
			"id":               id,
			"current_version":  current,
			"expected_version": expected,
		}),
	)
}

// CheckVersion compares the stored version with the expected one. A nil expected version skips
// the check. Stores call it while holding the row, before the conditional write.
func CheckVersion(entity Entity, id string, current int, expected *int) error {
	if expected == nil || *expected == current {
		return nil
	}

	return VersionConflict(entity, id, current, *expected)
}

// NextVersion returns the version a successful write stores.
func NextVersion(current int) int {
	return current + 1
}

// Expect is a helper for building an expected version.
func Expect(v int) *int {
	return &v
}
