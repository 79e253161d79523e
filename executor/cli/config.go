package cli

import "time"

type Config struct {
	// Command is the executable, looked up in PATH. Empty disables the hook.
	Command string        `envconfig:"MAILBLAST_HOOK"`
	Timeout time.Duration `envconfig:"MAILBLAST_HOOK_TIMEOUT" default:"30s"`
}
