package bindings

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apiclient-shell/internal/shared/paths"
	"go.uber.org/zap"
)

// Dialog request kinds sent to the requesting window.
const (
	DialogSave = "dialog.save"
	DialogOpen = "dialog.open"
)

// FileReadOptions controls how read returns the contents.
type FileReadOptions struct {
	// ReturnType is "buffer" or "arraybuffer" for raw bytes; anything else returns text.
	ReturnType string `json:"returnType,omitempty"`
}

// FileWriteOptions controls how contents are written.
type FileWriteOptions struct {
	// Encoding of string contents: "utf8" (default) or "base64".
	Encoding string `json:"encoding,omitempty"`
}

// Files serves the file-bindings channel.
type Files struct {
	logger *logging.Logger
}

// NewFiles creates the file handler.
func NewFiles(logger *logging.Logger) *Files {
	return &Files{logger: logger.Named("files")}
}

func (f *Files) Channel() string { return ChannelFiles }

// Handle dispatches dialog, read and write.
func (f *Files) Handle(ctx context.Context, call *Call) (any, error) {
	group, _ := stringArg(call.Args, 0)
	args := call.Args[min(1, len(call.Args)):]

	switch group {
	case "dialog":
		return f.dialog(ctx, call, args)
	case "read":
		return f.read(args)
	case "write":
		return nil, f.write(args)
	default:
		return nil, unknownCommand(arg(call.Args, 0))
	}
}

func (f *Files) dialog(ctx context.Context, call *Call, args []any) (any, error) {
	cmd, _ := stringArg(args, 0)
	opts := arg(args, 1)

	var kind string
	switch cmd {
	case "save":
		if opts == nil {
			return nil, invalid("Expected save dialog options.")
		}
		kind = DialogSave
	case "open":
		if opts == nil {
			return nil, invalid("Expected open dialog options.")
		}
		kind = DialogOpen
	default:
		return nil, invalid("Unknown file dialog command: %v", arg(args, 0))
	}

	if call.Window == nil {
		return nil, invalid("Unable to find a window for the contents.")
	}
	return call.Window.Request(ctx, kind, opts)
}

func (f *Files) read(args []any) (any, error) {
	path, ok := keyArg(args, 0)
	if !ok {
		return nil, invalid("Expected a file path.")
	}
	var opts FileReadOptions
	found, err := decodeArg(args, 1, &opts)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, invalid("Expected options when reading a file.")
	}

	target, err := paths.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("File read", zap.String("path", path), zap.Int("size", len(data)))

	switch opts.ReturnType {
	case "buffer", "arraybuffer":
		return data, nil
	default:
		return string(data), nil
	}
}

func (f *Files) write(args []any) error {
	path, ok := keyArg(args, 0)
	if !ok {
		return invalid("Expected a file path.")
	}
	var opts FileWriteOptions
	found, err := decodeArg(args, 2, &opts)
	if err != nil {
		return err
	}
	if !found {
		return invalid("Expected options when writing to a file.")
	}

	data, err := contentsArg(arg(args, 1), opts.Encoding)
	if err != nil {
		return err
	}
	target, err := paths.Expand(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return err
	}
	f.logger.Debug("File written", zap.String("path", path), zap.Int("size", len(data)))
	return nil
}

func contentsArg(v any, encoding string) ([]byte, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return c, nil
	case string:
		switch encoding {
		case "", "utf8", "utf-8":
			return []byte(c), nil
		case "base64":
			data, err := base64.StdEncoding.DecodeString(c)
			if err != nil {
				return nil, invalid("Invalid base64 contents: %v", err)
			}
			return data, nil
		default:
			return nil, invalid("Unsupported encoding: %s", encoding)
		}
	case []any:
		// a byte array sent as a list of numbers
		data := make([]byte, len(c))
		for i, n := range c {
			b, ok := n.(float64)
			if !ok || b < 0 || b > 255 {
				return nil, invalid("Invalid byte at %d.", i)
			}
			data[i] = byte(b)
		}
		return data, nil
	default:
		return nil, invalid("Unsupported contents type: %T", v)
	}
}
