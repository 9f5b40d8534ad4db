package hand

import "slices"

// BuildPots layers the hand's cumulative contributions into a main pot and
// side pots. A new layer starts at every distinct contribution level of a
// live all-in player; each layer is contested by the live players who put
// chips into it. Chips in a layer nobody live reached (money from players
// who folded above the last all-in) are added to the layer below.
//
// The returned pots sum to the total contributed, and for every player the
// contributions across pots sum to Player.Committed.
func BuildPots(players []Player) []SidePot {
	var levels []int64
	var top int64
	for _, p := range players {
		top = max(top, p.Committed)
		if p.AllIn && !p.Folded && p.Committed > 0 && !slices.Contains(levels, p.Committed) {
			levels = append(levels, p.Committed)
		}
	}
	slices.Sort(levels)
	if len(levels) == 0 || levels[len(levels)-1] < top {
		levels = append(levels, top)
	}

	var pots []SidePot
	var prev int64
	for _, level := range levels {
		pot := SidePot{Contributions: make(map[string]int64)}
		for _, p := range players {
			c := min(p.Committed, level) - prev
			if c <= 0 {
				continue
			}
			pot.Amount += c
			pot.Contributions[p.ID] = c
			if !p.Folded {
				pot.Eligible = append(pot.Eligible, p.ID)
			}
		}
		prev = level

		if pot.Amount == 0 {
			continue
		}
		if len(pot.Eligible) == 0 && len(pots) > 0 {
			last := &pots[len(pots)-1]
			last.Amount += pot.Amount
			for id, c := range pot.Contributions {
				last.Contributions[id] += c
			}
			continue
		}
		pots = append(pots, pot)
	}
	return pots
}

// PotTotal sums pot amounts.
func PotTotal(pots []SidePot) int64 {
	var total int64
	for _, p := range pots {
		total += p.Amount
	}
	return total
}
