package system

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CoreVersion is the running core's own version, compared against every
// driver's declared MinCoreVersion constraint. Set by cmd/ippd at build
// time (or left at the development default).
var CoreVersion = "0.1.0"

// DriverRecord is a printer application's driver record, per spec.md's
// Glossary entry "Driver data": a print/identify/status callback set plus
// a capability table, here carrying the semver compatibility gate from
// SPEC_FULL.md §4.4 ("a driver package declares the minimum core version
// it requires; the supervisor refuses to attach a driver whose declared
// requirement the running core doesn't satisfy").
//
// Version-constraint parsing follows the teacher's
// autoupdate.parseSemverVersion: tolerate a "v" prefix and accept bare
// two-segment versions by letting semver.NewVersion normalize them.
type DriverRecord struct {
	Name            string
	MinCoreVersion  string // semver constraint, e.g. ">=0.1.0" or "0.1.0"
	Pipeline        DocumentPipeline
}

// driverRegistry is the process-wide set of known drivers; attach under
// System.mu like every other shared collection.
type driverRegistry struct {
	records map[string]DriverRecord
}

func newDriverRegistry() *driverRegistry {
	return &driverRegistry{records: make(map[string]DriverRecord)}
}

// RegisterDriver validates rec.MinCoreVersion against CoreVersion and adds
// it to the registry. A driver whose constraint the running core fails is
// rejected with an error naming both versions, per SPEC_FULL.md §4.4.
func (sys *System) RegisterDriver(rec DriverRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("system: driver record requires a name")
	}
	if rec.MinCoreVersion != "" {
		ok, err := coreSatisfies(rec.MinCoreVersion)
		if err != nil {
			return fmt.Errorf("system: driver %q has an invalid version constraint %q: %w", rec.Name, rec.MinCoreVersion, err)
		}
		if !ok {
			return fmt.Errorf("system: driver %q requires core %s, running core is %s", rec.Name, rec.MinCoreVersion, CoreVersion)
		}
	}

	sys.mu.Lock()
	defer sys.mu.Unlock()
	if sys.driverRegistry == nil {
		sys.driverRegistry = newDriverRegistry()
	}
	sys.driverRegistry.records[rec.Name] = rec
	if !containsString(sys.drivers, rec.Name) {
		sys.drivers = append(sys.drivers, rec.Name)
	}
	return nil
}

// DriverFor looks up a previously registered driver record by name.
func (sys *System) DriverFor(name string) (DriverRecord, bool) {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	if sys.driverRegistry == nil {
		return DriverRecord{}, false
	}
	rec, ok := sys.driverRegistry.records[name]
	return rec, ok
}

// coreSatisfies parses constraint (accepting a bare version as an exact
// minimum, the way the teacher's isVersionAllowed treats a pinned target
// version) and reports whether CoreVersion satisfies it.
func coreSatisfies(constraint string) (bool, error) {
	trimmed := strings.TrimSpace(constraint)
	if trimmed == "" {
		return true, nil
	}

	core, err := semver.NewVersion(strings.TrimPrefix(CoreVersion, "v"))
	if err != nil {
		return false, fmt.Errorf("invalid core version %q: %w", CoreVersion, err)
	}

	// Bare version string ("1.2.3"): treat as a minimum, matching
	// SPEC_FULL.md's "minimum core version it requires" wording. Checked
	// before NewConstraint, which would read a bare version as an exact match.
	if bare, err := semver.NewVersion(strings.TrimPrefix(trimmed, "v")); err == nil {
		return !core.LessThan(bare), nil
	}

	c, err := semver.NewConstraint(trimmed)
	if err != nil {
		return false, err
	}
	return c.Check(core), nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
