package model

// Group is a Surge "select" policy group rendered into a profile.
type Group struct {
	Name    string
	Members []string // proxy names
}
