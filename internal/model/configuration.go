package model

import "sort"

// User is a Surge user keyed by username.
type User struct {
	Passcode string `json:"passcode"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

type UserRecord map[string]User

// Subscription is a remote node list keyed by name.
type Subscription struct {
	URL       string `json:"url"`
	Type      string `json:"type"`
	Index     *int   `json:"index,omitempty"`
	UpdatedAt *int64 `json:"updatedAt,omitempty"` // epoch ms
	UDPRelay  *bool  `json:"udpRelay,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

type SubscriptionRecord map[string]Subscription

// SubscriptionCache is the last successful check result of a subscription.
type SubscriptionCache struct {
	Body      string `json:"body"`
	UpdatedAt int64  `json:"updatedAt"`
	NodeCount int    `json:"nodeCount"`
}

type SubscriptionCacheRecord map[string]SubscriptionCache

func (u User) IsEnabled() bool { return u.Enabled != nil && *u.Enabled }

func (s Subscription) IsEnabled() bool { return s.Enabled != nil && *s.Enabled }

func (r UserRecord) Clone() UserRecord {
	out := make(UserRecord, len(r))
	for k, v := range r {
		v.Enabled = cloneBool(v.Enabled)
		out[k] = v
	}
	return out
}

func (r SubscriptionRecord) Clone() SubscriptionRecord {
	out := make(SubscriptionRecord, len(r))
	for k, v := range r {
		v.Enabled = cloneBool(v.Enabled)
		v.UDPRelay = cloneBool(v.UDPRelay)
		if v.Index != nil {
			i := *v.Index
			v.Index = &i
		}
		if v.UpdatedAt != nil {
			t := *v.UpdatedAt
			v.UpdatedAt = &t
		}
		out[k] = v
	}
	return out
}

func (r SubscriptionCacheRecord) Clone() SubscriptionCacheRecord {
	out := make(SubscriptionCacheRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Ordered returns subscription names by index, then name.
// Records without index sort last.
func (r SubscriptionRecord) Ordered() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r[names[i]].Index, r[names[j]].Index
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return names[i] < names[j]
	})
	return names
}

func Bool(v bool) *bool { return &v }

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
