package rules

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Hardcoded returns the built-in safety rules that are always enforced
// regardless of configuration or --bypass-rules. They block permanently
// catastrophic operations.
func Hardcoded() []CheckFunc {
	return []CheckFunc{
		checkRmCatastrophic,
	}
}

// Defaults returns the config-level rules active when the config file does
// not say otherwise. Unlike Hardcoded rules these can be bypassed.
func Defaults() []CheckFunc {
	return []CheckFunc{
		CheckGitCheckoutAll,
	}
}

// CheckGitCheckoutAll blocks "git checkout ." and "git checkout -- ."
// which silently discard all uncommitted changes.
func CheckGitCheckoutAll(program string, args []string) *Violation {
	if program != "git" || len(args) == 0 || args[0] != "checkout" {
		return nil
	}
	for i := 1; i < len(args); i++ {
		if filepath.Clean(args[i]) == "." {
			return &Violation{
				Arg:     i,
				Message: "checkout: refusing to discard all changes (config rule); rerun with --bypass-rules to allow",
			}
		}
	}
	return nil
}

// checkRmCatastrophic blocks recursive removal of root, home, or current directory.
func checkRmCatastrophic(program string, args []string) *Violation {
	if program != "rm" {
		return nil
	}
	if flagIndex(args, "-r", "-R", "--recursive") < 0 {
		return nil
	}
	for i, arg := range args {
		if arg == "" || arg[0] == '-' {
			continue
		}
		cleaned := filepath.Clean(arg)
		if cleaned == "/" || cleaned == "." || cleaned == ".." ||
			arg == "~" || strings.HasPrefix(arg, "~/") {
			return &Violation{
				Arg:     i,
				Message: fmt.Sprintf("refusing to recursively remove %q; this operation is permanently blocked", arg),
			}
		}
	}
	return nil
}
