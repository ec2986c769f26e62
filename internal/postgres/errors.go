package postgres

import "github.com/retailcore/rebates-api/internal/xerrors"

var (
	// ErrNotFound is returned when the requested row does not exist or is
	// inactive.
	ErrNotFound = xerrors.New("not found")

	// ErrDuplicateAgreementNumber is returned when an active agreement with
	// the same number already exists in the business unit.
	ErrDuplicateAgreementNumber = xerrors.New("agreement number already exists in business unit")
)
