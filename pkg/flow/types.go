package flow

import (
	"time"

	"github.com/CosmicWandererMaker/MFADownloadScript/pkg/watcher"
)

// Credentials holds the operator-supplied login inputs. The flow never
// stores them anywhere; they pass straight into the page.
type Credentials struct {
	Username string
	Password string
	MFACode  string
}

// Selectors identifies the page elements the flow interacts with. Element
// location strategy is the caller's responsibility; these defaults mirror
// common login forms.
type Selectors struct {
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Submit          string `yaml:"submit"`
	MFAInput        string `yaml:"mfa_input"`
	MFASubmit       string `yaml:"mfa_submit"`
	DownloadTrigger string `yaml:"download_trigger"`
}

// DefaultSelectors returns selectors for a conventional login form.
func DefaultSelectors() Selectors {
	return Selectors{
		Username:        "#username",
		Password:        "#password",
		Submit:          "button[type=submit]",
		MFAInput:        "#mfa_code",
		MFASubmit:       "button.mfa-verify",
		DownloadTrigger: "a[href*=download]",
	}
}

// MFAOutcome reports how the second-factor step resolved. The prompt may
// legitimately never appear, so its absence is raced against a bounded
// wait instead of being treated as an error.
type MFAOutcome string

const (
	// MFAPresent means the second-factor prompt appeared and the code was
	// submitted.
	MFAPresent MFAOutcome = "present"

	// MFAAbsentConfirmed means the flow was told no second factor exists
	// for this site (empty MFA selector).
	MFAAbsentConfirmed MFAOutcome = "absent_confirmed"

	// MFAAmbiguousTimeout means the prompt did not become visible within
	// the bounded wait. The flow proceeds as if no second factor was
	// required; callers should treat this as a weak signal, not a
	// verified branch.
	MFAAmbiguousTimeout MFAOutcome = "ambiguous_timeout"
)

// Options configures a session flow run.
type Options struct {
	// LoginURL is the page carrying the credential form
	LoginURL string

	// DownloadURL optionally names a separate page holding the download
	// trigger, visited after authentication. Empty means the trigger
	// lives on the post-login page.
	DownloadURL string

	// DownloadDir is where the browser writes downloads. The watcher
	// observes this same directory.
	DownloadDir string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// NavigationTimeout bounds page loads and element interactions
	// (default: 30s)
	NavigationTimeout time.Duration

	// MFAProbeWait bounds how long the flow waits for the second-factor
	// prompt to become visible before proceeding without it
	// (default: 10s)
	MFAProbeWait time.Duration
}

// Default bounds for flow operations.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultMFAProbeWait      = 10 * time.Second
)

// Result is what one complete flow run produces: how the second-factor
// branch resolved and the watcher's verdict for the triggered download.
type Result struct {
	MFA     MFAOutcome
	Verdict watcher.Verdict
}
