package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// waitForEnter blocks until the user presses Enter. It returns immediately
// when stdin is not a terminal.
func waitForEnter(prompt string, in io.Reader) error {
	if !stdinIsTTY() {
		return nil
	}
	fmt.Print(prompt)
	_, err := bufio.NewReader(in).ReadString('\n')
	if err == io.EOF {
		return nil
	}
	return err
}

func stdinIsTTY() bool {
	return isCharDevice(os.Stdin)
}

func stdoutIsTTY() bool {
	return isCharDevice(os.Stdout)
}

func isCharDevice(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
