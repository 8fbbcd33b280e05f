package admin

import (
	"sort"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

// UserPatch holds the user fields an edit may set. Anything else in the
// request is dropped while decoding.
type UserPatch struct {
	Passcode *string `json:"passcode,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// UserEdits maps a username to its patch; a nil patch deletes the user.
type UserEdits map[string]*UserPatch

func (p UserPatch) apply(u model.User) model.User {
	if p.Passcode != nil {
		u.Passcode = strings.TrimSpace(*p.Passcode)
	}
	if p.Enabled != nil {
		v := *p.Enabled
		u.Enabled = &v
	}
	return u
}

// ApplyUserEdits returns a copy of users with edits applied. Edits are
// processed in username order and nothing is returned unless all succeed.
func ApplyUserEdits(users model.UserRecord, edits UserEdits) (model.UserRecord, error) {
	out := users.Clone()
	for _, raw := range sortedKeys(edits) {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, invalid("edit_users", "Username must not be empty")
		}
		patch := edits[raw]
		old, exists := out[name]
		switch {
		case !exists && patch == nil:
			return nil, notFound("edit_users", "User %s doesn't exist", name)
		case patch == nil:
			delete(out, name)
		case !exists && patch.Passcode == nil:
			return nil, invalid("edit_users", "%s.passcode required", name)
		default:
			u := patch.apply(old)
			if issues := model.ValidateUser(name, u); len(issues) > 0 {
				return nil, invalid("edit_users", "%s", strings.Join(issues, ", "))
			}
			out[name] = u
		}
	}
	return out, nil
}

// setAllUsersEnabled sets the enabled flag of every user.
func setAllUsersEnabled(users model.UserRecord, enabled bool) model.UserRecord {
	out := users.Clone()
	for name, u := range out {
		u.Enabled = model.Bool(enabled)
		out[name] = u
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
