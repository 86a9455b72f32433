package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/engine"
	"github.com/roach88/assetsync/internal/ir"
)

// Child positions within composite nodes. These mirror the builder's
// field order, which is part of the wire contract.
const (
	solutionProjectsField  = 1
	projectDocumentsField  = 3
	projectAdditionalField = 7
)

// TreeLine is one node of a printed checksum tree.
type TreeLine struct {
	Depth    int    `json:"depth"`
	Kind     string `json:"kind"`
	Checksum string `json:"checksum"`
	Inline   bool   `json:"inline,omitempty"`
}

func (l TreeLine) String() string {
	mark := ""
	if l.Inline {
		mark = " (inline)"
	}
	return fmt.Sprintf("%s%s %s%s", strings.Repeat("  ", l.Depth), l.Kind, l.Checksum, mark)
}

// node resolves sum in scope h and decodes it.
func node(ctx context.Context, e *engine.Engine, h engine.Handle, sum checksum.Checksum) (asset.Node, error) {
	data, err := e.ResolveOne(ctx, h, sum)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("checksum %s not found in scope %d", sum.Short(), h)
	}
	return asset.Unmarshal(data)
}

func collection(ctx context.Context, e *engine.Engine, h engine.Handle, sum checksum.Checksum) (*asset.Collection, error) {
	n, err := node(ctx, e, h, sum)
	if err != nil {
		return nil, err
	}
	c, ok := n.(*asset.Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a collection", asset.ErrCorruptNode, sum.Short())
	}
	return c, nil
}

// dumpTree lists every node under root, depth first, in wire order.
// Null children are skipped.
func dumpTree(ctx context.Context, e *engine.Engine, h engine.Handle, root checksum.Checksum) ([]TreeLine, error) {
	var lines []TreeLine
	var walk func(sum checksum.Checksum, inline *asset.Collection, depth int) error
	walk = func(sum checksum.Checksum, inline *asset.Collection, depth int) error {
		var n asset.Node = inline
		if inline == nil {
			var err error
			if n, err = node(ctx, e, h, sum); err != nil {
				return err
			}
		}
		lines = append(lines, TreeLine{Depth: depth, Kind: n.Kind().String(), Checksum: sum.String(), Inline: inline != nil})
		c, ok := n.(*asset.Collection)
		if !ok {
			return nil
		}
		for _, child := range c.Children() {
			if child.Checksum.IsNull() {
				continue
			}
			if err := walk(child.Checksum, child.Node, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, nil, 0); err != nil {
		return nil, err
	}
	return lines, nil
}

// projectChecksums pairs each project of s with its node checksum in the
// tree rooted at root.
func projectChecksums(ctx context.Context, e *engine.Engine, h engine.Handle, root checksum.Checksum, s *ir.SolutionState) (map[ir.ProjectID]checksum.Checksum, error) {
	c, err := collection(ctx, e, h, root)
	if err != nil {
		return nil, err
	}
	projects := c.Child(solutionProjectsField).Node
	if projects == nil || projects.Len() != len(s.Projects()) {
		return nil, fmt.Errorf("%w: solution %s project list does not match its state", asset.ErrCorruptNode, root.Short())
	}
	out := make(map[ir.ProjectID]checksum.Checksum, projects.Len())
	for i, p := range s.Projects() {
		out[p.ID()] = projects.Child(i).Checksum
	}
	return out, nil
}

// documentChecksums pairs each regular and additional document of p with
// its node checksum.
func documentChecksums(ctx context.Context, e *engine.Engine, h engine.Handle, sum checksum.Checksum, p *ir.ProjectState) (map[ir.DocumentID]checksum.Checksum, error) {
	c, err := collection(ctx, e, h, sum)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.DocumentID]checksum.Checksum)
	for field, docs := range map[int][]*ir.DocumentState{
		projectDocumentsField:  p.Documents(),
		projectAdditionalField: p.AdditionalDocuments(),
	} {
		list := c.Child(field).Node
		if list == nil || list.Len() != len(docs) {
			return nil, fmt.Errorf("%w: project %s document list does not match its state", asset.ErrCorruptNode, sum.Short())
		}
		for i, d := range docs {
			out[d.ID()] = list.Child(i).Checksum
		}
	}
	return out, nil
}
