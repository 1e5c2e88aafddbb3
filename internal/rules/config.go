package rules

import "fmt"

// ProgramRuleConfig represents one program's rules from YAML config.
type ProgramRuleConfig struct {
	RejectFlags []string                 `yaml:"reject_flags"`
	Subcommands map[string]SubRuleConfig `yaml:"subcommands"`
}

// SubRuleConfig represents rules for a specific subcommand.
type SubRuleConfig struct {
	RejectFlags []string `yaml:"reject_flags"`
}

// Compile turns a single program's config into CheckFuncs.
func Compile(program string, cfg ProgramRuleConfig) []CheckFunc {
	var fns []CheckFunc

	// Top-level reject_flags for the whole program.
	if len(cfg.RejectFlags) > 0 {
		flags := cfg.RejectFlags
		fns = append(fns, func(name string, args []string) *Violation {
			if name != program {
				return nil
			}
			if i := flagIndex(args, flags...); i >= 0 {
				return &Violation{
					Arg:     i,
					Message: fmt.Sprintf("%s: flag %s rejected by config rule; rerun with --bypass-rules to allow", program, args[i]),
				}
			}
			return nil
		})
	}

	// Subcommand-level rules.
	for sub, subRule := range cfg.Subcommands {
		if len(subRule.RejectFlags) == 0 {
			continue
		}
		flags := subRule.RejectFlags
		fns = append(fns, func(name string, args []string) *Violation {
			if name != program || len(args) == 0 || args[0] != sub {
				return nil
			}
			if i := flagIndex(args[1:], flags...); i >= 0 {
				return &Violation{
					Arg:     i + 1,
					Message: fmt.Sprintf("%s %s: flag %s rejected by config rule; rerun with --bypass-rules to allow", program, sub, args[i+1]),
				}
			}
			return nil
		})
	}

	return fns
}
