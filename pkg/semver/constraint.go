package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const constraintLogPrefix = "semver:constraint"

// CheckConstraint returns an error unless version satisfies constraint.
// An empty constraint is satisfied by any version.
func CheckConstraint(constraint, version string) error {
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", constraintLogPrefix, version, err)
	}
	if constraint == "" {
		return nil
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%s - invalid constraint %q: %w", constraintLogPrefix, constraint, err)
	}
	if ok, errs := c.Validate(v); !ok {
		reason := "not satisfied"
		if len(errs) > 0 {
			reason = errs[0].Error()
		}
		return fmt.Errorf("%s - version %s does not satisfy %q: %s", constraintLogPrefix, version, constraint, reason)
	}
	return nil
}

// ValidateVersion reports whether v is a valid semantic version.
func ValidateVersion(v string) bool {
	_, err := masterminds.NewVersion(v)
	return err == nil
}
