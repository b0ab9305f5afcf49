package loyalty

import (
	"fmt"

	xerrors "github.com/aykha18/tajir-loyalty/internal/pkg/errors"
)

func errInvalidLevel(level TierLevel) error {
	return fmt.Errorf("%w: unknown tier level %q", xerrors.ErrInvalidTierCatalog, level)
}

func errThresholdOrder(lower, higher TierLevel) error {
	return fmt.Errorf("%w: %s threshold must be below %s", xerrors.ErrInvalidTierCatalog, lower, higher)
}

func errNoEntryTier(count int) error {
	return fmt.Errorf("%w: exactly one tier must have threshold 0, found %d", xerrors.ErrInvalidTierCatalog, count)
}
