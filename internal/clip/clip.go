// Package clip copies run results to the clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the text available.
type Method string

const (
	MethodNative Method = "native" // OS clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard escape sequence
	MethodFile   Method = "file"   // temp file, when no clipboard is reachable
)

// Result reports how the text was delivered.
type Result struct {
	Method   Method
	FilePath string // only set for MethodFile
}

// osc52LimitBytes is a conservative cap; many terminals drop larger payloads.
const osc52LimitBytes = 100_000

// Copier tries the native clipboard, then OSC52, then a temp file.
type Copier struct {
	native     func(string) error
	terminal   io.Writer
	isTerminal func() bool
	getenv     func(string) string
	tempDir    string
}

// New returns a Copier wired to the OS clipboard and stderr.
func New() *Copier {
	return &Copier{
		native:     atotto.WriteAll,
		terminal:   os.Stderr,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
		getenv:     os.Getenv,
	}
}

// Copy delivers text by the first method that works.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}

	if c.native != nil && !atotto.Unsupported {
		if err := c.native(text); err == nil {
			return Result{Method: MethodNative}, nil
		}
	}

	if err := c.writeOSC52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := c.writeTempFile(text)
	if err != nil {
		return Result{}, fmt.Errorf("copying result: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

func (c *Copier) writeOSC52(text string) error {
	if c.terminal == nil || c.isTerminal == nil || !c.isTerminal() {
		return errors.New("no terminal attached")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	switch {
	case c.getenv("TMUX") != "":
		seq = seq.Tmux()
	case c.getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.terminal)
	return err
}

func (c *Copier) writeTempFile(text string) (path string, err error) {
	f, err := os.CreateTemp(c.tempDir, "taskgraph-result-*.txt")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		_ = f.Close()
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
