// Package systemd wraps the sd_notify protocol for daemons running under a
// systemd service manager. All calls degrade to no-ops outside systemd
// (NOTIFY_SOCKET unset), so they are safe to call unconditionally.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells the service manager that startup finished.
// The bool reports whether a notification was actually sent.
func NotifyReady() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells the service manager that shutdown began.
func NotifyStopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// NotifyWatchdog sends one keep-alive ping.
func NotifyWatchdog() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}

// WatchdogInterval returns the interval WatchdogSec configured for this
// service, or 0 when the watchdog is not enabled. Pings should be sent at
// half the returned interval.
func WatchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}
