package sectiongraph

import "github.com/starford/segue/internal/models"

// NormalPlan is the result of LoopNormal.
type NormalPlan struct {
	// Links is the live table.
	Links []int
	// Anchor is the section the preferred chain loops back to, or
	// IndexNone when no valid preferred section was given.
	Anchor int
	// Head is the head of the chain containing the preferred section.
	Head int
}

// LoopNormal keeps the authored chains and optionally closes each one on
// itself. The chain holding preferred loops back to preferred rather than
// to its head, so playback repeats the sub-range starting where the user
// asked. Without looping every chain ends at its tail, which also breaks
// authored cycles.
func LoopNormal(authored []int, preferred int, loop bool) NormalPlan {
	n := len(authored)
	plan := NormalPlan{
		Links:  terminalTable(n),
		Anchor: models.IndexNone,
		Head:   models.IndexNone,
	}
	if n == 0 {
		return plan
	}

	chains := Chains(authored)
	if valid(preferred, n) {
		plan.Head, _ = locate(chains, preferred)
		plan.Anchor = preferred
	}

	for _, c := range chains {
		for i := 0; i+1 < len(c.Members); i++ {
			plan.Links[c.Members[i]] = c.Members[i+1]
		}
		if !loop {
			continue
		}
		if c.Head() == plan.Head {
			plan.Links[c.Tail()] = plan.Anchor
		} else {
			plan.Links[c.Tail()] = c.Head()
		}
	}
	return plan
}

// LoopAllSections ignores authored links and plays sections in index
// order, wrapping from the last to the first when loop is set.
func LoopAllSections(n int, loop bool) []int {
	out := terminalTable(n)
	for i := 0; i < n; i++ {
		switch {
		case i+1 < n:
			out[i] = i + 1
		case loop:
			out[i] = 0
		}
	}
	return out
}

// LoopAllSetup concatenates every authored chain, in chain order, into one
// chain and optionally links its final tail back to the first head.
func LoopAllSetup(authored []int, loop bool) []int {
	out := terminalTable(len(authored))
	chains := Chains(authored)
	if len(chains) == 0 {
		return out
	}
	prev := models.IndexNone
	for _, c := range chains {
		for _, s := range c.Members {
			if prev != models.IndexNone {
				out[prev] = s
			}
			prev = s
		}
	}
	if loop {
		out[prev] = chains[0].Head()
	}
	return out
}
