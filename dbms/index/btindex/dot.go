package btindex

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/btree-heap-index/relidx/dbms/index/btpage"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

// maxKeysShown bounds how many keys a node label lists before eliding.
const maxKeysShown = 8

// Print exports the tree as graphviz DOT and, when the dot binary is
// available, renders it to PNG next to the DOT file.
func (x *Index) Print(name string) {
	dotPath := fmt.Sprintf("results/%s.dot", name)
	pngPath := fmt.Sprintf("results/%s.png", name)

	if err := x.ExportDOT(dotPath); err != nil {
		fmt.Println("DOT export error:", err)
		return
	}

	cmd := exec.Command("dot", "-Tpng", dotPath, "-o", pngPath)
	if err := cmd.Run(); err != nil {
		fmt.Printf("graphviz error: %v (is 'dot' installed?)\n", err)
		return
	}
	fmt.Printf("tree exported to %s\n", pngPath)
}

// ExportDOT writes the node graph, including leaf sibling links, as DOT.
func (x *Index) ExportDOT(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(f, "digraph BPlusTree {")
	fmt.Fprintln(f, "  graph [ranksep=0.8, nodesep=0.5, rankdir=TB];")
	fmt.Fprintln(f, "  node [shape=record, fontname=\"Helvetica\", fontsize=10];")
	fmt.Fprintln(f, "  edge [arrowsize=0.8, color=\"#444444\"];")

	var leaves []pager.PageID
	var walk func(id pager.PageID) error
	walk = func(id pager.PageID) error {
		p, err := x.pg.Fetch(id)
		if err != nil {
			return err
		}
		n := btpage.Count(p)

		if btpage.IsLeaf(p) {
			fmt.Fprintf(f, "  p%d [label=\"{LEAF %d (n=%d)|%s}\"];\n",
				id, id, n, leafKeysLabel(p, n))
			leaves = append(leaves, id)
			return x.pg.Unpin(id, false)
		}

		fmt.Fprintf(f, "  p%d [label=\"{INTERNAL %d (n=%d, level=%d)|%s}\"];\n",
			id, id, n, btpage.Level(p), internalKeysLabel(p, n))
		children := make([]pager.PageID, n+1)
		for i := 0; i <= n; i++ {
			children[i] = btpage.Child(p, i)
		}
		if err := x.pg.Unpin(id, false); err != nil {
			return err
		}
		for _, c := range children {
			fmt.Fprintf(f, "  p%d -> p%d;\n", id, c)
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(x.rootID); err != nil {
		return err
	}

	// Chain leaves horizontally to show the sibling links.
	if len(leaves) > 1 {
		fmt.Fprintln(f, "  { rank=same;")
		for _, id := range leaves {
			fmt.Fprintf(f, "    p%d;\n", id)
		}
		fmt.Fprintln(f, "  }")
		for i := 0; i+1 < len(leaves); i++ {
			fmt.Fprintf(f, "  p%d -> p%d [style=dashed, constraint=false];\n",
				leaves[i], leaves[i+1])
		}
	}

	fmt.Fprintln(f, "}")
	return nil
}

func leafKeysLabel(p *pager.Page, n int) string {
	if n == 0 {
		return "empty"
	}
	if n <= maxKeysShown {
		s := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				s += " "
			}
			s += fmt.Sprintf("%d", btpage.LeafKey(p, i))
		}
		return s
	}
	return fmt.Sprintf("%d .. %d", btpage.LeafKey(p, 0), btpage.LeafKey(p, n-1))
}

func internalKeysLabel(p *pager.Page, n int) string {
	if n <= maxKeysShown {
		s := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				s += " "
			}
			s += fmt.Sprintf("%d", btpage.InternalKey(p, i))
		}
		return s
	}
	return fmt.Sprintf("%d .. %d", btpage.InternalKey(p, 0), btpage.InternalKey(p, n-1))
}
