package model

// ReactionGroup is aggregated reaction info for display.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users,omitempty"` // user IDs, insertion order
}

// GroupReactions collapses a flat reaction list into per-emoji groups in
// first-seen emoji order. It is a pure projection recomputed from scratch on
// every call; duplicates by the same actor count toward the emoji total
// ("one button, many reactors").
func GroupReactions(reactions []Reaction) []ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}
	index := make(map[string]int, len(reactions))
	groups := make([]ReactionGroup, 0, len(reactions))
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			index[r.Emoji] = len(groups)
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
			i = len(groups) - 1
		}
		groups[i].Count++
		if r.UserID != "" {
			groups[i].Users = append(groups[i].Users, r.UserID)
		}
	}
	return groups
}
