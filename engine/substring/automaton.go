package substring

// Aho-Corasick automaton over runes. Built wholesale from a pattern
// list; matching walks the text once and reports every occurrence of
// every pattern.

type acNode struct {
	next    map[rune]int
	fail    int
	outputs []int // pattern indexes terminating at this node
}

type automaton struct {
	nodes    []acNode
	patterns []string
}

// occurrence is one pattern hit in the text, [Start, End) in runes.
type occurrence struct {
	pattern int
	start   int
	end     int
}

func buildAutomaton(patterns []string) *automaton {
	a := &automaton{
		nodes:    []acNode{{next: make(map[rune]int)}},
		patterns: patterns,
	}
	for i, pat := range patterns {
		a.insert(pat, i)
	}
	a.link()
	return a
}

func (a *automaton) insert(pattern string, index int) {
	cur := 0
	for _, r := range pattern {
		nxt, ok := a.nodes[cur].next[r]
		if !ok {
			a.nodes = append(a.nodes, acNode{next: make(map[rune]int)})
			nxt = len(a.nodes) - 1
			a.nodes[cur].next[r] = nxt
		}
		cur = nxt
	}
	a.nodes[cur].outputs = append(a.nodes[cur].outputs, index)
}

// link computes failure transitions breadth-first and merges the
// outputs reachable through them.
func (a *automaton) link() {
	queue := make([]int, 0, len(a.nodes))
	for _, child := range a.nodes[0].next {
		a.nodes[child].fail = 0
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for r, child := range a.nodes[cur].next {
			f := a.nodes[cur].fail
			for {
				if nxt, ok := a.nodes[f].next[r]; ok && nxt != child {
					f = nxt
					break
				}
				if f == 0 {
					break
				}
				f = a.nodes[f].fail
			}
			a.nodes[child].fail = f
			a.nodes[child].outputs = append(a.nodes[child].outputs, a.nodes[f].outputs...)
			queue = append(queue, child)
		}
	}
}

// find reports every pattern occurrence in text. Positions are rune
// offsets.
func (a *automaton) find(text string) []occurrence {
	if len(a.patterns) == 0 {
		return nil
	}
	var occs []occurrence
	cur := 0
	pos := 0
	for _, r := range text {
		for cur != 0 {
			if _, ok := a.nodes[cur].next[r]; ok {
				break
			}
			cur = a.nodes[cur].fail
		}
		if nxt, ok := a.nodes[cur].next[r]; ok {
			cur = nxt
		}
		pos++
		for _, pat := range a.nodes[cur].outputs {
			length := runeLen(a.patterns[pat])
			occs = append(occs, occurrence{pattern: pat, start: pos - length, end: pos})
		}
	}
	return occs
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
