// Package notify sends an optional desktop notification after a run
// completes. The core never calls it directly; cmd/watchexec wires it in
// when --notify is given.
package notify

import "os/exec"

// durationMillis is the notification's requested on-screen time.
const durationMillis = "3000"

// Send posts a desktop notification carrying msg (the operator-supplied
// --notify value) via notify-send, if present on PATH. A non-zero exit or
// a missing binary is not surfaced as an error: a failed notification
// should never be the reason a run is reported as failed.
func Send(appName, msg string) {
	cmd := exec.Command("notify-send", "-u", "normal", "-t", durationMillis, "-a", appName, msg)
	_ = cmd.Run()
}
