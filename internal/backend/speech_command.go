package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"shorteezy/internal/retry"
	"shorteezy/internal/runstore"
)

const (
	placeholderText   = "{text}"
	placeholderOutput = "{output}"

	DefaultCoquiModel = "tts_models/en/ljspeech/tacotron2-DDC"
	DefaultEdgeVoice  = "en-US-GuyNeural"
)

// CommandSpeech synthesizes speech by running a local program that writes
// the audio file itself. Args may contain {text} and {output} placeholders.
// The program is pointed at a temp file next to the target, which is
// renamed into place only after a clean exit.
type CommandSpeech struct {
	Program string
	Args    []string
	Format  string
	Env     []string
	Logger  *log.Logger
}

// CoquiSpeech drives the Coqui TTS command line (`tts`).
func CoquiSpeech(model string) *CommandSpeech {
	if strings.TrimSpace(model) == "" {
		model = DefaultCoquiModel
	}
	return &CommandSpeech{
		Program: "tts",
		Args:    []string{"--text", placeholderText, "--model_name", model, "--out_path", placeholderOutput},
		Format:  "wav",
	}
}

// EdgeSpeech drives edge-tts.
func EdgeSpeech(voice string) *CommandSpeech {
	if strings.TrimSpace(voice) == "" {
		voice = DefaultEdgeVoice
	}
	return &CommandSpeech{
		Program: "edge-tts",
		Args:    []string{"--voice", voice, "--text", placeholderText, "--write-media", placeholderOutput},
		Format:  "mp3",
	}
}

// ParseSpeechCommand builds an adapter from a command line such as
// "piper --model en.onnx --output_file {output}". Without placeholders the
// generic `--text {text} --output {output}` arguments are appended.
func ParseSpeechCommand(cmdline, format string) (*CommandSpeech, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("speech command is empty")
	}
	args := fields[1:]
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, placeholderText) {
		args = append(args, "--text", placeholderText)
	}
	if !strings.Contains(joined, placeholderOutput) {
		args = append(args, "--output", placeholderOutput)
	}
	if strings.TrimSpace(format) == "" {
		format = "wav"
	}
	if strings.HasSuffix(fields[0], ".py") {
		return &CommandSpeech{Program: "python3", Args: append([]string{fields[0]}, args...), Format: format}, nil
	}
	return &CommandSpeech{Program: fields[0], Args: args, Format: format}, nil
}

func (c *CommandSpeech) SpeechFormat() string { return strings.TrimPrefix(c.Format, ".") }

// Check reports whether the program can be found on PATH.
func (c *CommandSpeech) Check() (string, error) {
	path, err := exec.LookPath(c.Program)
	if err != nil {
		return "", fmt.Errorf("speech program %q not found on PATH", c.Program)
	}
	return path, nil
}

func (c *CommandSpeech) GenerateSpeech(ctx context.Context, text, targetPath string) error {
	tmpPath, err := runstore.TempPathFor(targetPath)
	if err != nil {
		return err
	}

	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		a = strings.ReplaceAll(a, placeholderText, text)
		a = strings.ReplaceAll(a, placeholderOutput, tmpPath)
		args = append(args, a)
	}

	cmd := exec.CommandContext(ctx, c.Program, args...)
	cmd.WaitDelay = 5 * time.Second
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if c.Logger != nil {
		c.Logger.Debug("speech command", "program", c.Program, "output", targetPath)
	}
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(err, exec.ErrNotFound) {
			return retry.Permanent(fmt.Errorf("%s: %w", c.Program, err))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", c.Program, ctxErr)
		}
		return fmt.Errorf("%s failed: %w: %s", c.Program, err, tail(stderr.String(), 600))
	}
	return runstore.CommitFile(tmpPath, targetPath)
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
