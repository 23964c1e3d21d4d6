package version

import (
	"fmt"
	"regexp"
	"strconv"
)

// clnVersionRe matches the release part of core-lightning versions like
// v24.02.2, v23.08rc1, v24.11-modded or v24.05-14-gdeadbeef.
var clnVersionRe = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?`)

type release [3]int

func parseRelease(v string) (release, error) {
	var r release
	m := clnVersionRe.FindStringSubmatch(v)
	if m == nil {
		return r, fmt.Errorf("malformed version string %q", v)
	}
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return r, fmt.Errorf("malformed version string %q: %w", v, err)
		}
		r[i] = n
	}
	return r, nil
}

// CompareVersionStrings returns true if release `a` is higher or equal to
// release `b`. Release candidates and build suffixes count as their release.
func CompareVersionStrings(a, b string) (bool, error) {
	ra, err := parseRelease(a)
	if err != nil {
		return false, err
	}
	rb, err := parseRelease(b)
	if err != nil {
		return false, err
	}
	for i := range ra {
		if ra[i] != rb[i] {
			return ra[i] > rb[i], nil
		}
	}
	return true, nil
}

// CheckClnVersion returns an error if the core-lightning version is older
// than MinClnVersion.
func CheckClnVersion(clnVersion string) error {
	ok, err := CompareVersionStrings(clnVersion, MinClnVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ClnVersionError{clnVersion}
	}
	return nil
}

type ClnVersionError struct {
	version string
}

func (c ClnVersionError) Error() string {
	return fmt.Sprintf("core-lightning %s is not supported, need at least %s", c.version, MinClnVersion)
}
