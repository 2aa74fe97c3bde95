// Package sectiongraph builds the live next-section table used to play a
// montage, and answers the traversal questions the preview controller asks
// of it.
//
// A link table is a []int where entry i is the section played after
// section i, or models.IndexNone when playback stops after i. Authored
// tables come from models.Montage.AuthoredLinks; live tables are produced
// here and installed on a playback instance.
package sectiongraph

import "github.com/starford/segue/internal/models"

// StepLength is the duration of one preview frame in seconds.
func StepLength() float32 {
	return 1.0 / models.ReferenceFrameRate
}

// Chain is a run of sections reached by following authored links from
// Members[0] until a terminal link or an already visited section.
type Chain struct {
	Members []int
}

// Head is the first section of the chain.
func (c Chain) Head() int { return c.Members[0] }

// Tail is the last section of the chain.
func (c Chain) Tail() int { return c.Members[len(c.Members)-1] }

// Chains partitions the table into disjoint chains. Each chain starts at
// the lowest-index section not visited by an earlier chain, so a link into
// an earlier chain ends the current one. Cycles end at the re-encountered
// section.
func Chains(authored []int) []Chain {
	n := len(authored)
	used := make([]bool, n)
	var out []Chain
	for start := 0; start < n; start++ {
		if used[start] {
			continue
		}
		var members []int
		for cur := start; ; {
			used[cur] = true
			members = append(members, cur)
			next := authored[cur]
			if !valid(next, n) || used[next] {
				break
			}
			cur = next
		}
		out = append(out, Chain{Members: members})
	}
	return out
}

// FirstOccurrence returns the head of the authored chain that reaches
// target in the fewest hops, or IndexNone for an invalid target. Equal
// distances keep the chain found first.
func FirstOccurrence(authored []int, target int) int {
	if !valid(target, len(authored)) {
		return models.IndexNone
	}
	head, _ := locate(Chains(authored), target)
	return head
}

// locate finds the chain holding target with the smallest hop distance
// from its head.
func locate(chains []Chain, target int) (head, dist int) {
	head, dist = models.IndexNone, -1
	for _, c := range chains {
		for d, s := range c.Members {
			if s == target && (dist < 0 || d < dist) {
				head, dist = c.Head(), d
			}
		}
	}
	return head, dist
}

// LastInLiveChain follows the live table from start and returns the last
// section reached before a terminal link or a revisit. It takes at most
// len(live) steps. An invalid start is returned unchanged.
func LastInLiveChain(live []int, start int) int {
	n := len(live)
	if !valid(start, n) {
		return start
	}
	visited := make([]bool, n)
	cur := start
	for {
		visited[cur] = true
		next := live[cur]
		if !valid(next, n) || visited[next] {
			return cur
		}
		cur = next
	}
}

func valid(i, n int) bool {
	return i >= 0 && i < n
}

func terminalTable(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = models.IndexNone
	}
	return out
}
