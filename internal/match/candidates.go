package match

// candidate is one scored target for a source.
type candidate struct {
	index  int
	value  string
	scores ScoreSet
}

// topK keeps the best candidates ordered by overall score, highest first.
// Equal scores keep arrival order, so the earliest target wins a dead heat.
// At least two are retained so tie detection works for every k; only k are
// reported.
type topK struct {
	k     int
	keep  int
	items []candidate
}

func newTopK(k int) *topK {
	if k < 1 {
		k = 1
	}
	keep := k
	if keep < 2 {
		keep = 2
	}
	return &topK{k: k, keep: keep, items: make([]candidate, 0, keep)}
}

func (t *topK) offer(c candidate) {
	if len(t.items) == t.keep && c.scores.Overall <= t.items[len(t.items)-1].scores.Overall {
		return
	}

	pos := len(t.items)
	for pos > 0 && t.items[pos-1].scores.Overall < c.scores.Overall {
		pos--
	}

	if len(t.items) < t.keep {
		t.items = append(t.items, candidate{})
	}
	copy(t.items[pos+1:], t.items[pos:len(t.items)-1])
	t.items[pos] = c
}

func (t *topK) best() (candidate, bool) {
	if len(t.items) == 0 {
		return candidate{}, false
	}
	return t.items[0], true
}

// tied reports whether the runner-up is within margin of the winner.
func (t *topK) tied(margin float64) bool {
	if len(t.items) < 2 {
		return false
	}
	return t.items[0].scores.Overall-t.items[1].scores.Overall < margin
}

func (t *topK) alternatives() []Alternative {
	n := len(t.items)
	if n > t.k {
		n = t.k
	}
	if n < 2 {
		return nil
	}
	alts := make([]Alternative, 0, n-1)
	for _, c := range t.items[1:n] {
		alts = append(alts, Alternative{TargetIndex: c.index, TargetValue: c.value, Overall: c.scores.Overall})
	}
	return alts
}
