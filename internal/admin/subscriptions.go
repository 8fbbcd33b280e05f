package admin

import (
	"slices"
	"sort"
	"strings"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

// SubscriptionPatch holds the subscription fields an edit may set.
// updatedAt is owned by the server.
type SubscriptionPatch struct {
	URL      *string `json:"url,omitempty"`
	Type     *string `json:"type,omitempty"`
	Index    *int    `json:"index,omitempty"`
	UDPRelay *bool   `json:"udpRelay,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// SubscriptionEdits maps a subscription name to its patch; a nil patch
// deletes the subscription together with its cache.
type SubscriptionEdits map[string]*SubscriptionPatch

func (p SubscriptionPatch) apply(s model.Subscription) model.Subscription {
	if p.URL != nil {
		s.URL = strings.TrimSpace(*p.URL)
	}
	if p.Type != nil {
		s.Type = strings.TrimSpace(*p.Type)
	}
	if p.UDPRelay != nil {
		v := *p.UDPRelay
		s.UDPRelay = &v
	}
	if p.Enabled != nil {
		v := *p.Enabled
		s.Enabled = &v
	}
	return s
}

// ApplySubscriptionEdits returns copies of subs and caches with edits
// applied and subscriptions re-indexed. now (epoch ms) becomes the
// updatedAt of every subscription that was created or actually changed.
func ApplySubscriptionEdits(subs model.SubscriptionRecord, caches model.SubscriptionCacheRecord, edits SubscriptionEdits, types []string, now int64) (model.SubscriptionRecord, model.SubscriptionCacheRecord, error) {
	before := subs
	out := subs.Clone()
	outCaches := caches.Clone()
	moves := map[string]int{}
	touched := map[string]*SubscriptionPatch{}

	for _, raw := range sortedKeys(edits) {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, nil, invalid("edit_subscriptions", "Subscription name must not be empty")
		}
		patch := edits[raw]
		old, exists := out[name]
		switch {
		case !exists && patch == nil:
			return nil, nil, notFound("edit_subscriptions", "Subscription %s doesn't exist", name)
		case patch == nil:
			delete(out, name)
			delete(outCaches, name)
			delete(moves, name)
			delete(touched, name)
		default:
			s := patch.apply(old)
			if patch.Index != nil {
				if *patch.Index < 0 {
					return nil, nil, invalid("edit_subscriptions", "%s.index must be greater than or equal to 0", name)
				}
				moves[name] = *patch.Index
			}
			if issues := model.ValidateSubscription(name, s, types); len(issues) > 0 {
				return nil, nil, invalid("edit_subscriptions", "%s", strings.Join(issues, ", "))
			}
			if exists && (s.URL != old.URL || s.Type != old.Type) {
				delete(outCaches, name)
			}
			out[name] = s
			touched[name] = patch
		}
	}

	Reindex(out, moves)

	for name := range touched {
		old, existed := before[name]
		s := out[name]
		_, moved := moves[name]
		if !existed || changed(old, s, moved) {
			t := now
			s.UpdatedAt = &t
			out[name] = s
		}
	}
	return out, outCaches, nil
}

// changed compares everything a patch can set. The index only counts when
// the patch asked for a position; other edits shift indices freely.
func changed(old, cur model.Subscription, moved bool) bool {
	if old.URL != cur.URL || old.Type != cur.Type {
		return true
	}
	if moved && (old.Index == nil || *old.Index != *cur.Index) {
		return true
	}
	if !boolEqual(old.UDPRelay, cur.UDPRelay) || !boolEqual(old.Enabled, cur.Enabled) {
		return true
	}
	return false
}

func boolEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Reindex assigns indices 0..n-1 to subs in place.
//
// Subscriptions keep their relative order: index ascending (records without
// one last), then the most recently updated first, then name. Each entry
// of moves is then taken out and re-inserted at the requested position,
// lowest position first; positions past the end mean "last".
func Reindex(subs model.SubscriptionRecord, moves map[string]int) {
	order := make([]string, 0, len(subs))
	for name := range subs {
		if _, moving := moves[name]; !moving {
			order = append(order, name)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		return less(subs, order[i], order[j])
	})

	movers := make([]string, 0, len(moves))
	for name := range moves {
		if _, ok := subs[name]; ok {
			movers = append(movers, name)
		}
	}
	sort.Slice(movers, func(i, j int) bool {
		if moves[movers[i]] != moves[movers[j]] {
			return moves[movers[i]] < moves[movers[j]]
		}
		return movers[i] < movers[j]
	})
	for _, name := range movers {
		pos := min(moves[name], len(order))
		order = slices.Insert(order, pos, name)
	}

	for i, name := range order {
		s := subs[name]
		idx := i
		s.Index = &idx
		subs[name] = s
	}
}

func less(subs model.SubscriptionRecord, a, b string) bool {
	sa, sb := subs[a], subs[b]
	switch {
	case sa.Index != nil && sb.Index != nil && *sa.Index != *sb.Index:
		return *sa.Index < *sb.Index
	case sa.Index != nil && sb.Index == nil:
		return true
	case sa.Index == nil && sb.Index != nil:
		return false
	}
	ua, ub := updatedAt(sa), updatedAt(sb)
	if ua != ub {
		return ua > ub
	}
	return a < b
}

func updatedAt(s model.Subscription) int64 {
	if s.UpdatedAt == nil {
		return 0
	}
	return *s.UpdatedAt
}

func setAllSubscriptionsEnabled(subs model.SubscriptionRecord, enabled bool) model.SubscriptionRecord {
	out := subs.Clone()
	for name, s := range out {
		s.Enabled = model.Bool(enabled)
		out[name] = s
	}
	return out
}
