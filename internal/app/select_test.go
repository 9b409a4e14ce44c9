package app

import (
	"reflect"
	"testing"
)

func TestSelectAllWhenNoAllowList(t *testing.T) {
	sel := Select([]string{"b", "a", "c"}, nil, nil)
	if !reflect.DeepEqual(sel.Selected, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected selection: %+v", sel)
	}
}

func TestSelectAllowList(t *testing.T) {
	sel := Select([]string{"default", "default_logs", "audit"}, []string{"default", "ghost"}, nil)
	if !reflect.DeepEqual(sel.Selected, []string{"default"}) {
		t.Fatalf("unexpected selection: %+v", sel)
	}
	if !reflect.DeepEqual(sel.Missing, []string{"ghost"}) {
		t.Fatalf("unexpected missing: %+v", sel.Missing)
	}
}

func TestSelectBlacklistWins(t *testing.T) {
	sel := Select([]string{"foo", "bar"}, []string{"foo"}, []string{"foo"})
	if len(sel.Selected) != 0 {
		t.Fatalf("blacklisted collection selected: %+v", sel)
	}
	if !reflect.DeepEqual(sel.Excluded, []string{"foo"}) {
		t.Fatalf("unexpected excluded: %+v", sel.Excluded)
	}
	if len(sel.Missing) != 0 {
		t.Fatalf("blacklisted name reported missing: %+v", sel.Missing)
	}
}

func TestSelectBlacklistOnly(t *testing.T) {
	sel := Select([]string{"default", "default_logs", "tmp"}, nil, []string{"tmp", "unknown"})
	if !reflect.DeepEqual(sel.Selected, []string{"default", "default_logs"}) {
		t.Fatalf("unexpected selection: %+v", sel)
	}
	if !reflect.DeepEqual(sel.Excluded, []string{"tmp"}) {
		t.Fatalf("unexpected excluded: %+v", sel.Excluded)
	}
}
