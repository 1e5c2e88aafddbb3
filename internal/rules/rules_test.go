package rules

import "testing"

func TestFlagIndex(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		flags []string
		want  int
	}{
		// Exact match.
		{"exact short", []string{"-f"}, []string{"-f"}, 0},
		{"exact long", []string{"--force"}, []string{"--force"}, 0},
		{"no match", []string{"-v"}, []string{"-f"}, -1},

		// Combined short flags.
		{"combined rf matches r", []string{"-rf"}, []string{"-r"}, 0},
		{"combined rf matches f", []string{"-rf"}, []string{"-f"}, 0},
		{"combined rf no match x", []string{"-rf"}, []string{"-x"}, -1},

		// Short flag with value (e.g., -j4).
		{"j4 matches j", []string{"-j4"}, []string{"-j"}, 0},
		{"j matches j", []string{"-j"}, []string{"-j"}, 0},
		{"j4 no match k", []string{"-j4"}, []string{"-k"}, -1},

		// Long flag with =.
		{"force=yes matches force", []string{"--force=yes"}, []string{"--force"}, 0},
		{"initial-branch=master", []string{"--initial-branch=master"}, []string{"--initial-branch"}, 0},
		{"no match long", []string{"--verbose"}, []string{"--force"}, -1},

		// Non-flag args should be skipped.
		{"non-flag path", []string{"/tmp/file"}, []string{"-f"}, -1},
		{"non-flag word", []string{"hello"}, []string{"-f"}, -1},
		{"empty arg", []string{""}, []string{"-f"}, -1},

		// Mixed args report the position of the flag.
		{"mixed", []string{"file.txt", "-r", "dir/"}, []string{"-r"}, 1},
		{"mixed no match", []string{"file.txt", "-r", "dir/"}, []string{"-f"}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flagIndex(tt.args, tt.flags...)
			if got != tt.want {
				t.Errorf("flagIndex(%v, %v) = %d, want %d",
					tt.args, tt.flags, got, tt.want)
			}
		})
	}
}

func TestRuleSetCheck(t *testing.T) {
	hardcoded := &Violation{Arg: 0, Message: "hardcoded block"}
	config := &Violation{Arg: -1, Message: "config block"}

	t.Run("hardcoded fires first", func(t *testing.T) {
		rs := NewRuleSet(func(prog string, args []string) *Violation {
			if prog == "rm" {
				return hardcoded
			}
			return nil
		})
		rs.AddConfig(func(prog string, args []string) *Violation {
			if prog == "rm" {
				return config
			}
			return nil
		})

		if v := rs.Check("rm", []string{"-rf", "/"}, false); v != hardcoded {
			t.Errorf("expected hardcoded violation, got %v", v)
		}
	})

	t.Run("config fires when hardcoded passes", func(t *testing.T) {
		rs := NewRuleSet(func(prog string, args []string) *Violation { return nil })
		rs.AddConfig(func(prog string, args []string) *Violation {
			if prog == "make" {
				return config
			}
			return nil
		})

		if v := rs.Check("make", []string{"-j4"}, false); v != config {
			t.Errorf("expected config violation, got %v", v)
		}
	})

	t.Run("all pass", func(t *testing.T) {
		rs := NewRuleSet(func(prog string, args []string) *Violation { return nil })
		rs.AddConfig(func(prog string, args []string) *Violation { return nil })

		if v := rs.Check("grep", []string{"-r", "TODO"}, false); v != nil {
			t.Errorf("expected nil, got %v", v)
		}
	})

	t.Run("nil ruleset", func(t *testing.T) {
		var rs *RuleSet
		if v := rs.Check("rm", []string{"-rf", "/"}, false); v != nil {
			t.Errorf("expected nil, got %v", v)
		}
	})

	t.Run("bypass skips config rules", func(t *testing.T) {
		rs := NewRuleSet()
		rs.AddConfig(func(prog string, args []string) *Violation { return config })

		if v := rs.Check("make", []string{"-j4"}, true); v != nil {
			t.Errorf("expected nil with bypass=true, got %v", v)
		}
	})

	t.Run("bypass does not skip hardcoded", func(t *testing.T) {
		rs := NewRuleSet(Hardcoded()...)
		rs.AddConfig(func(prog string, args []string) *Violation { return config })

		v := rs.Check("rm", []string{"-rf", "/"}, true)
		if v == nil || v.Arg != 1 {
			t.Errorf("expected hardcoded violation on arg 1 even with bypass, got %+v", v)
		}
	})
}
