package bindings

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// arg returns positional argument i, or nil when absent.
func arg(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// stringArg returns argument i when it is a string.
func stringArg(args []any, i int) (string, bool) {
	s, ok := arg(args, i).(string)
	return s, ok
}

// keyArg returns argument i when it is a non-empty string.
func keyArg(args []any, i int) (string, bool) {
	s, ok := stringArg(args, i)
	return s, ok && s != ""
}

// decodeArg converts argument i into dst. It reports false when the argument is
// absent or null.
func decodeArg(args []any, i int, dst any) (bool, error) {
	v := arg(args, i)
	if v == nil {
		return false, nil
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("argument %d: %w", i, err)
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return false, invalid("Invalid argument %d: %v", i, err)
	}
	return true, nil
}
