package codec

import (
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/icza/bitio"

	"github.com/hailam/tablegen/internal/table"
)

// maxCodeLen bounds code lengths so a code always fits one WriteBits call.
const maxCodeLen = 64

// Tree is a Huffman code over scores. Node 0 is the root.
type Tree struct {
	nodes []hnode
	codes map[table.Score]code
}

type hnode struct {
	leaf bool
	sym  table.Score
	kids [2]int32
}

type code struct {
	bits uint64
	n    uint8
}

// BuildTree builds a Huffman tree from symbol frequencies. Ties are broken by
// creation order with leaves created in ascending symbol order, so equal
// histograms always give equal trees. A single symbol gets a one-bit code.
func BuildTree(freq map[table.Score]uint64) (*Tree, error) {
	if len(freq) == 0 {
		return nil, errors.New("huffman: empty histogram")
	}
	syms := make([]table.Score, 0, len(freq)+1)
	for s := range freq {
		syms = append(syms, s)
	}
	slices.Sort(syms)

	// A lone symbol needs a sibling so its code has a bit to read.
	weights := make(map[table.Score]uint64, len(syms)+1)
	for _, s := range syms {
		weights[s] = freq[s]
	}
	if len(syms) == 1 {
		dummy := table.Draw
		if syms[0] == table.Draw {
			dummy = table.Mated
		}
		syms = append(syms, dummy)
		weights[dummy] = 0
	}

	h := &buildHeap{}
	for _, s := range syms {
		heap.Push(h, &buildItem{weight: weights[s], seq: h.next, node: &buildNode{sym: s, leaf: true}})
		h.next++
	}
	for h.Len() > 1 {
		a := heap.Pop(h).(*buildItem)
		b := heap.Pop(h).(*buildItem)
		heap.Push(h, &buildItem{
			weight: a.weight + b.weight,
			seq:    h.next,
			node:   &buildNode{kids: [2]*buildNode{a.node, b.node}},
		})
		h.next++
	}
	root := heap.Pop(h).(*buildItem).node

	// Flatten in preorder.
	t := &Tree{}
	var flatten func(b *buildNode) int32
	flatten = func(b *buildNode) int32 {
		i := int32(len(t.nodes))
		t.nodes = append(t.nodes, hnode{leaf: b.leaf, sym: b.sym})
		if !b.leaf {
			l := flatten(b.kids[0])
			r := flatten(b.kids[1])
			t.nodes[i].kids = [2]int32{l, r}
		}
		return i
	}
	flatten(root)
	if err := t.assignCodes(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) assignCodes() error {
	t.codes = make(map[table.Score]code)
	var walk func(i int32, c code) error
	walk = func(i int32, c code) error {
		n := t.nodes[i]
		if n.leaf {
			t.codes[n.sym] = c
			return nil
		}
		if c.n == maxCodeLen {
			return fmt.Errorf("huffman: code longer than %d bits", maxCodeLen)
		}
		for b, k := range n.kids {
			if err := walk(k, code{bits: c.bits<<1 | uint64(b), n: c.n + 1}); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0, code{})
}

// CodeLen returns the code length of s, or 0 when s has no code.
func (t *Tree) CodeLen(s table.Score) int {
	return int(t.codes[s].n)
}

// Symbols returns the number of coded symbols.
func (t *Tree) Symbols() int { return len(t.codes) }

func (t *Tree) write(w *bitio.Writer, s table.Score) error {
	c, ok := t.codes[s]
	if !ok {
		return fmt.Errorf("huffman: score %d has no code", s)
	}
	return w.WriteBits(c.bits, c.n)
}

func (t *Tree) read(r *bitio.Reader) (table.Score, error) {
	i := int32(0)
	for !t.nodes[i].leaf {
		b, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if b {
			i = t.nodes[i].kids[1]
		} else {
			i = t.nodes[i].kids[0]
		}
	}
	return t.nodes[i].sym, nil
}

// treeJSON is the compact form of a tree: its preorder shape, '0' for an
// inner node and '1' for a leaf, and the leaf symbols in the same order.
type treeJSON struct {
	Shape  string        `json:"shape"`
	Leaves []table.Score `json:"leaves"`
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	var shape strings.Builder
	var leaves []table.Score
	for _, n := range t.nodes {
		if n.leaf {
			shape.WriteByte('1')
			leaves = append(leaves, n.sym)
		} else {
			shape.WriteByte('0')
		}
	}
	return json.Marshal(treeJSON{Shape: shape.String(), Leaves: leaves})
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	var tj treeJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	t.nodes = t.nodes[:0]
	pos, leaf := 0, 0
	var parse func() (int32, error)
	parse = func() (int32, error) {
		if pos >= len(tj.Shape) {
			return 0, fmt.Errorf("%w: tree shape ends early", ErrCorrupt)
		}
		i := int32(len(t.nodes))
		c := tj.Shape[pos]
		pos++
		switch c {
		case '1':
			if leaf >= len(tj.Leaves) {
				return 0, fmt.Errorf("%w: tree has too few leaves", ErrCorrupt)
			}
			t.nodes = append(t.nodes, hnode{leaf: true, sym: tj.Leaves[leaf]})
			leaf++
		case '0':
			t.nodes = append(t.nodes, hnode{})
			l, err := parse()
			if err != nil {
				return 0, err
			}
			r, err := parse()
			if err != nil {
				return 0, err
			}
			t.nodes[i].kids = [2]int32{l, r}
		default:
			return 0, fmt.Errorf("%w: bad tree shape byte %q", ErrCorrupt, c)
		}
		return i, nil
	}
	if _, err := parse(); err != nil {
		return err
	}
	if pos != len(tj.Shape) || leaf != len(tj.Leaves) {
		return fmt.Errorf("%w: tree shape and leaves disagree", ErrCorrupt)
	}
	return t.assignCodes()
}

type buildNode struct {
	sym  table.Score
	leaf bool
	kids [2]*buildNode
}

type buildItem struct {
	weight uint64
	seq    int
	node   *buildNode
}

type buildHeap struct {
	items []*buildItem
	next  int
}

func (h *buildHeap) Len() int { return len(h.items) }

func (h *buildHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.weight != b.weight {
		return a.weight < b.weight
	}
	return a.seq < b.seq
}

func (h *buildHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *buildHeap) Push(x any) { h.items = append(h.items, x.(*buildItem)) }

func (h *buildHeap) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
