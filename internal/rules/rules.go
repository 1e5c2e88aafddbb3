package rules

import "strings"

// Violation reports an argument list that a rule refuses to run.
type Violation struct {
	Arg     int // index into args of the offending argument, or -1 for the whole invocation
	Message string
}

func (v *Violation) Error() string { return v.Message }

// CheckFunc validates arguments for a named program.
// Returns a non-nil Violation to block execution.
type CheckFunc func(program string, args []string) *Violation

// RuleSet holds an ordered list of validation rules. Hardcoded rules run first
// and cannot be removed. Config rules are appended after.
type RuleSet struct {
	hardcoded []CheckFunc
	config    []CheckFunc
}

// NewRuleSet creates a RuleSet with the given hardcoded rules.
func NewRuleSet(hardcoded ...CheckFunc) *RuleSet {
	return &RuleSet{hardcoded: hardcoded}
}

// AddConfig appends a config-driven rule.
func (rs *RuleSet) AddConfig(fn CheckFunc) {
	rs.config = append(rs.config, fn)
}

// Check runs all rules against the given program name and args.
// Hardcoded rules always run first. When bypass is true, config rules are
// skipped (the user has explicitly approved the operation).
func (rs *RuleSet) Check(program string, args []string, bypass bool) *Violation {
	if rs == nil {
		return nil
	}
	for _, fn := range rs.hardcoded {
		if v := fn(program, args); v != nil {
			return v
		}
	}
	if bypass {
		return nil
	}
	for _, fn := range rs.config {
		if v := fn(program, args); v != nil {
			return v
		}
	}
	return nil
}

// flagIndex returns the index of the first element in args matching one of
// the given flags, or -1. It handles:
//   - Exact match: "-f" matches "-f"
//   - Combined short flags: "-rf" matches "-r" and "-f"
//   - Short flag with value: "-j4" matches "-j"
//   - Long flag with =: "--flag=value" matches "--flag"
func flagIndex(args []string, flags ...string) int {
	for i, arg := range args {
		if arg == "" || arg[0] != '-' {
			continue
		}
		for _, flag := range flags {
			if arg == flag {
				return i
			}
			// Short flag: "-j" matches "-j4" (value suffix) and "-rf" (combined)
			if len(flag) == 2 && flag[0] == '-' && flag[1] != '-' &&
				len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
				if strings.ContainsRune(arg[1:], rune(flag[1])) {
					return i
				}
			}
			// Long flag with =: "--force" matches "--force=yes"
			if len(flag) > 2 && flag[0:2] == "--" && strings.HasPrefix(arg, flag+"=") {
				return i
			}
		}
	}
	return -1
}
