// Package power invokes the platform power-off command for thermal
// emergencies. Under WSL the host is a Windows machine, so the command
// goes through powershell.exe; on native Linux it goes through systemd
// logind, with systemctl as a fallback.
package power

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/login1"
)

// Executor issues the system power-off command. Safe to invoke
// repeatedly: the command is only spawned once per process lifetime,
// matching the state machine's re-emitted ShutdownNow events.
type Executor struct {
	wsl  bool
	once sync.Once
}

// NewExecutor detects the platform once at construction.
func NewExecutor() *Executor {
	return &Executor{wsl: isWSL()}
}

// Shutdown invokes the power-off command. Failures are reported to the
// caller for the operator surface; they never roll back the shutdown
// state, since the emergency that caused it is still true.
func (e *Executor) Shutdown() error {
	var err error
	e.once.Do(func() {
		err = e.invoke()
	})
	return err
}

func (e *Executor) invoke() error {
	if e.wsl {
		// Stop the Windows host, not the WSL guest
		cmd := exec.Command("powershell.exe", "-Command", "Stop-Computer -Force")
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to invoke powershell shutdown: %w", err)
		}
		return nil
	}

	if conn, err := login1.New(); err == nil {
		defer conn.Close()
		conn.PowerOff(false)
		return nil
	}

	cmd := exec.Command("systemctl", "poweroff")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to invoke systemctl poweroff: %w", err)
	}
	return nil
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	v := strings.ToLower(string(data))
	return strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
}
