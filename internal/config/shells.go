package config

import (
	"os"
	"os/exec"
	"runtime"
	"slices"
)

// Replaced in tests.
var (
	lookPath = exec.LookPath
	goos     = runtime.GOOS
)

// unixShells are probed in order when no configured shell is usable.
var unixShells = []Shell{
	{Name: "Bash", ID: "bash", Command: "bash", Args: []string{"--login"}},
	{Name: "Zsh", ID: "zsh", Command: "zsh", Args: []string{"--login"}},
	{Name: "Fish", ID: "fish", Command: "fish"},
	{Name: "Sh", ID: "sh", Command: "sh"},
}

// ResolveShells drops configured shells whose executable cannot be found.
// If none remain, the installed shells are detected instead. The default
// shell is then fixed up to name one of the remaining shells.
func (c *Config) ResolveShells() {
	var usable []Shell
	for _, s := range c.Terminal.Shells {
		if commandExists(s.Command) {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		usable = DetectShells()
	}
	c.Terminal.Shells = usable

	ids := make([]string, len(usable))
	for i, s := range usable {
		ids[i] = s.ID
	}
	if def := c.Terminal.DefaultShell; def != "" && slices.Contains(ids, def) {
		return
	}
	c.Terminal.DefaultShell = platformDefaultShell()
	if !slices.Contains(ids, c.Terminal.DefaultShell) && len(usable) > 0 {
		c.Terminal.DefaultShell = usable[0].ID
	}
}

// DetectShells returns the known shells installed on this host with their
// commands resolved to absolute paths.
func DetectShells() []Shell {
	var found []Shell
	for _, s := range unixShells {
		path, err := lookPath(s.Command)
		if err != nil {
			if _, statErr := os.Stat(s.Command); statErr != nil {
				continue
			}
			path = s.Command
		}
		s.Command = path
		s.Args = slices.Clone(s.Args)
		found = append(found, s)
	}
	return found
}

// platformDefaultShell is zsh on macOS and bash elsewhere, each falling
// back to whatever is installed.
func platformDefaultShell() string {
	installed := func(name string) bool {
		_, err := lookPath(name)
		return err == nil
	}

	if goos == "darwin" {
		if installed("zsh") {
			return "zsh"
		}
		return "bash"
	}
	if installed("bash") {
		return "bash"
	}
	if installed("zsh") {
		return "zsh"
	}
	return "sh"
}

func commandExists(command string) bool {
	if command == "" {
		return false
	}
	if _, err := lookPath(command); err == nil {
		return true
	}
	_, err := os.Stat(command)
	return err == nil
}
