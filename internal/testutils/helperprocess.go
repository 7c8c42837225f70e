package testutils

import (
	"os"
)

// HelperProcessCmd returns a command re-executing the test binary on the helper test name.
// The helper sees GO_WANT_HELPER_PROCESS=1 and receives args, followed by anything appended by
// the caller, after a "--" separator.
func HelperProcessCmd(name string, args ...string) []string {
	cmd := []string{"env", "GO_WANT_HELPER_PROCESS=1", os.Args[0], "-test.run=" + name, "--"}
	return append(cmd, args...)
}

// IsHelperProcess reports whether the test binary was started by HelperProcessCmd.
func IsHelperProcess() bool {
	return os.Getenv("GO_WANT_HELPER_PROCESS") == "1"
}

// HelperArgs returns the arguments following the "--" separator.
func HelperArgs() []string {
	args := os.Args
	for len(args) > 0 {
		if args[0] != "--" {
			args = args[1:]
			continue
		}
		args = args[1:]
		break
	}
	return args
}
