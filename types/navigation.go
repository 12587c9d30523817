package types

// NavigationType classifies a navigation log entry.
type NavigationType string

// Navigation entry types.
const (
	NavigationLoad     NavigationType = "load"
	NavigationReload   NavigationType = "reload"
	NavigationNavigate NavigationType = "navigate"
	NavigationUnload   NavigationType = "unload"
)

// NavigationEntry is one record of the session navigation log.
type NavigationEntry struct {
	Type  NavigationType `json:"type"`
	URL   string         `json:"url"`
	State string         `json:"state,omitempty"`
	Info  string         `json:"info,omitempty"`
}
