// Package notifications fires best-effort local desktop notifications when a
// background task proposes a memory-block edit. It is never on the critical
// path: every call here is fire-and-forget from the executor's perspective.
package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// ToastNotifier shows a Windows toast when a proposal is created. On other
// platforms ShowToast is a documented no-op (IsSupported reports false).
type ToastNotifier struct {
	appID        string
	dashboardURL string
}

// NewToastNotifier creates a notifier for the given app id, used as the
// toast's source identity in the Windows notification center.
func NewToastNotifier(appID, dashboardURL string) *ToastNotifier {
	if appID == "" {
		appID = "tutord"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &ToastNotifier{appID: appID, dashboardURL: dashboardURL}
}

// IsSupported returns true if toast notifications are supported on this platform.
func (t *ToastNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}

// NotifyProposalCreated fires a toast when a background task proposes an edit
// to a user's memory block.
func (t *ToastNotifier) NotifyProposalCreated(userID, blockLabel string) error {
	if !t.IsSupported() {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   t.appID,
		Title:   "New memory proposal",
		Message: fmt.Sprintf("A background task proposed an edit to %s's %q block", userID, blockLabel),
		Audio:   toast.Default,
		Actions: []toast.Action{
			{
				Type:      "protocol",
				Label:     "Review",
				Arguments: t.dashboardURL,
			},
		},
	}
	return notification.Push()
}
