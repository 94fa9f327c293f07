package wizard

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
)

// State represents the current step in the login flow
type State int

const (
	StateWelcome State = iota
	StateDetails
	StateLogin
	StateDone
	StateError
)

// LoginFunc exchanges service-account credentials for a token.
type LoginFunc func(ctx context.Context, url, account, key string) (string, error)

// SaveFunc persists the credentials once a token is obtained.
type SaveFunc func(url, account, key, token string) error

// Model holds the state for the Bubble Tea login wizard
type Model struct {
	state State

	login LoginFunc
	save  SaveFunc

	// Collected credentials
	url            string
	serviceAccount string
	serviceKey     string
	token          string

	// Login attempt
	loggingIn   bool
	loginError  error
	retryChoice int // 0=retry, 1=edit, 2=quit

	// Input fields (using bubbletea textinput)
	inputs     []textinput.Model
	focusIndex int

	// Validation
	errors map[string]string

	err error

	// Terminal dimensions
	width  int
	height int
}

// Result is how the wizard reports back to the caller.
type Result struct {
	URL            string
	ServiceAccount string
	LoggedIn       bool
}
