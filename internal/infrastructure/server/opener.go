package server

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// opener returns a function that shows a URL with command, or with the
// platform's default handler when command is empty.
func opener(command string) func(ctx context.Context, url string) error {
	return func(_ context.Context, url string) error {
		name, args := openCommand(command, runtime.GOOS)
		cmd := exec.Command(name, append(args, url)...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}
}

func openCommand(command, goos string) (string, []string) {
	if fields := strings.Fields(command); len(fields) > 0 {
		return fields[0], fields[1:]
	}
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}
