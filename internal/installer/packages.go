package installer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// packageOptions lists package-manager installs of the toolkit in
// preference order for goos.
func packageOptions(goos string) []installOption {
	options := []installOption{
		{
			manager: "mamba",
			commands: [][]string{
				{"mamba", "install", "-y", "-c", "conda-forge", "-c", "bioconda", "sra-tools"},
			},
		},
		{
			manager: "conda",
			commands: [][]string{
				{"conda", "install", "-y", "-c", "conda-forge", "-c", "bioconda", "sra-tools"},
			},
		},
	}

	switch goos {
	case "darwin":
		options = append(options, installOption{
			manager: "brew",
			commands: [][]string{
				{"brew", "install", "sratoolkit"},
			},
		})
	case "linux":
		options = append(options,
			installOption{
				manager: "apt-get",
				commands: [][]string{
					{"apt-get", "update"},
					{"apt-get", "install", "-y", "sra-toolkit"},
				},
			},
			installOption{
				manager: "dnf",
				commands: [][]string{
					{"dnf", "install", "-y", "sra-tools"},
				},
			},
			installOption{
				manager: "brew",
				commands: [][]string{
					{"brew", "install", "sratoolkit"},
				},
			},
		)
	}
	return options
}

func (i *Installer) runFirstSuccessfulInstall(ctx context.Context, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !i.commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		i.log.Infof("Installing SRA Toolkit with %s", option.manager)
		if err := i.runInstallCommands(ctx, option.commands); err == nil {
			return nil
		} else {
			errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (i *Installer) runInstallCommands(ctx context.Context, commands [][]string) error {
	for _, command := range commands {
		if err := i.runCommandWithPossibleElevation(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) runCommandWithPossibleElevation(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return errors.New("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) && i.commandAvailable("sudo") {
		candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if err := i.run(ctx, candidate[0], candidate[1:]...); err == nil {
			return nil
		} else {
			attemptErrors = append(attemptErrors, err.Error())
		}
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

// runCommand executes one install command and folds a trimmed copy of its
// output into the error.
func runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf":
		return true
	default:
		return false
	}
}

func (i *Installer) commandAvailable(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}
