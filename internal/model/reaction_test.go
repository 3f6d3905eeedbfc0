package model

import (
	"reflect"
	"testing"
)

func TestGroupReactionsFirstSeenOrder(t *testing.T) {
	in := []Reaction{
		{Emoji: "👍", UserID: "u1"},
		{Emoji: "👍", UserID: "u2"},
		{Emoji: "❤️", UserID: "u3"},
		{Emoji: "👍", UserID: "u4"},
	}
	got := GroupReactions(in)
	want := []ReactionGroup{
		{Emoji: "👍", Count: 3, Users: []string{"u1", "u2", "u4"}},
		{Emoji: "❤️", Count: 1, Users: []string{"u3"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GroupReactions = %+v, want %+v", got, want)
	}
}

func TestGroupReactionsSameActorCountsTwice(t *testing.T) {
	in := []Reaction{
		{Emoji: "🔥", UserID: "u1"},
		{Emoji: "🔥", UserID: "u1"},
	}
	got := GroupReactions(in)
	if len(got) != 1 || got[0].Count != 2 {
		t.Fatalf("GroupReactions = %+v, want one group with count 2", got)
	}
}

func TestGroupReactionsEmpty(t *testing.T) {
	if got := GroupReactions(nil); got != nil {
		t.Fatalf("GroupReactions(nil) = %+v, want nil", got)
	}
}

func TestGroupReactionsPure(t *testing.T) {
	in := []Reaction{{Emoji: "👍", UserID: "u1"}}
	first := GroupReactions(in)
	second := GroupReactions(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated aggregation diverged: %+v vs %+v", first, second)
	}
	if len(in) != 1 {
		t.Fatalf("input mutated: %+v", in)
	}
}
