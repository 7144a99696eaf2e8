package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier sends desktop notifications
type DesktopNotifier struct {
	enabled bool
	run     func(name string, args ...string) error
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{
		enabled: enabled,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.run("osascript", macOSArgs(n)...)
	case "linux":
		return d.run("notify-send", linuxArgs(n)...)
	default:
		return nil // Unsupported
	}
}

func macOSArgs(n Notification) []string {
	script := `display notification "` + appleScriptEscape(n.Message) +
		`" with title "` + appleScriptEscape(n.Title) + `"`
	return []string{"-e", script}
}

func linuxArgs(n Notification) []string {
	args := []string{"-i", IconForType(n.Type)}
	if n.Type == NotifyError {
		args = append(args, "-u", "critical")
	}
	return append(args, n.Title, n.Message)
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// IconForType returns an icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
