package mqttc

import "testing"

func TestSubscriptionTableInstallAndMatch(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.install("a/+", AtLeastOnce, nil)
	tbl.install("a/#", ExactlyOnce, nil)

	matches := tbl.match("a/b")
	if len(matches) != 2 {
		t.Fatalf("match(%q) returned %d entries, want 2 (overlapping filters)", "a/b", len(matches))
	}

	if tbl.len() != 2 {
		t.Fatalf("len() = %d, want 2", tbl.len())
	}
}

func TestSubscriptionTableInstallReplacesDuplicateFilter(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.install("a/b", AtMostOnce, nil)
	tbl.install("a/b", ExactlyOnce, nil)

	if tbl.len() != 1 {
		t.Fatalf("len() = %d, want 1 after re-install of same filter", tbl.len())
	}
	all := tbl.all()
	if len(all) != 1 || all[0].qos != ExactlyOnce {
		t.Fatalf("all() = %+v, want single entry with QoS %v", all, ExactlyOnce)
	}
}

func TestSubscriptionTableRemove(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.install("x/y", AtMostOnce, nil)
	tbl.remove("x/y")

	if tbl.len() != 0 {
		t.Fatalf("len() after remove = %d, want 0", tbl.len())
	}
	if matches := tbl.match("x/y"); len(matches) != 0 {
		t.Fatalf("match() after remove = %v, want none", matches)
	}

	// Removing an absent filter is a no-op.
	tbl.remove("absent")
}

func TestSubscriptionTableAllPreservesInsertionOrder(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.install("c", AtMostOnce, nil)
	tbl.install("a", AtMostOnce, nil)
	tbl.install("b", AtMostOnce, nil)

	all := tbl.all()
	want := []string{"c", "a", "b"}
	for i, w := range want {
		if all[i].filter != w {
			t.Fatalf("all()[%d].filter = %q, want %q", i, all[i].filter, w)
		}
	}
}
