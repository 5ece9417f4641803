package system

import "testing"

func TestCoreSatisfies(t *testing.T) {
	old := CoreVersion
	CoreVersion = "1.2.3"
	defer func() { CoreVersion = old }()

	cases := []struct {
		constraint string
		want       bool
	}{
		{"", true},
		{"1.2.3", true},
		{"1.0.0", true},
		{"2.0.0", false},
		{">=1.0.0", true},
		{">=2.0.0", false},
		{"~1.2.0", true},
	}
	for _, c := range cases {
		got, err := coreSatisfies(c.constraint)
		if err != nil {
			t.Fatalf("coreSatisfies(%q): %v", c.constraint, err)
		}
		if got != c.want {
			t.Errorf("coreSatisfies(%q) = %v, want %v", c.constraint, got, c.want)
		}
	}
}

func TestRegisterDriverRejectsIncompatibleVersion(t *testing.T) {
	old := CoreVersion
	CoreVersion = "1.0.0"
	defer func() { CoreVersion = old }()

	sys := &System{drivers: nil}
	if err := sys.RegisterDriver(DriverRecord{Name: "future", MinCoreVersion: ">=2.0.0"}); err == nil {
		t.Fatal("expected an error registering a driver requiring a newer core")
	}
	if err := sys.RegisterDriver(DriverRecord{Name: "compatible", MinCoreVersion: ">=0.5.0"}); err != nil {
		t.Fatalf("expected a compatible driver to register cleanly: %v", err)
	}
	if _, ok := sys.DriverFor("compatible"); !ok {
		t.Fatal("expected DriverFor to find the registered driver")
	}
}

func TestRegisterDriverRejectsMissingName(t *testing.T) {
	sys := &System{}
	if err := sys.RegisterDriver(DriverRecord{}); err == nil {
		t.Fatal("expected an error for a driver record with no name")
	}
}
