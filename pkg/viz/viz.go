// Package viz renders the change history of a message store document as SVG.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/relay-chat/pkg/store"
)

// Label describes one change: short hash, actor and sequence, and the number
// of messages in the document as of that change.
func Label(change *automerge.Change, messages int) string {
	return fmt.Sprintf("%s %s@%d messages=%d", change.Hash().String()[:8], change.ActorID(), change.ActorSeq(), messages)
}

// WriteDot writes the change graph in graphviz dot syntax.
func WriteDot(doc *automerge.Doc, out io.Writer) error {
	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	fmt.Fprintln(out, `digraph "log" {`)
	for _, change := range changes {
		n, err := countAt(doc, change)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "    \"%s\" [label=\"%s\"]\n", change.Hash(), Label(change, n))
		for _, hash := range change.Dependencies() {
			fmt.Fprintf(out, "    \"%s\" -> \"%s\"\n", hash, change.Hash())
		}
	}
	fmt.Fprintln(out, "}")
	return nil
}

func countAt(doc *automerge.Doc, change *automerge.Change) (int, error) {
	docAt, err := doc.Fork(change.Hash())
	if err != nil {
		return 0, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
	}
	n, err := store.Len(docAt)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages at %s: %w", change.Hash(), err)
	}
	return n, nil
}

func RenderDocToSvg(doc *automerge.Doc, outputPath string) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}

	nodeMap := make(map[string]*cgraph.Node)
	var edgeCounter uint64
	for _, change := range changes {
		count, err := countAt(doc, change)
		if err != nil {
			return err
		}

		n, err := graph.CreateNode(change.Hash().String())
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(Label(change, count))
		nodeMap[n.Name()] = n

		for _, hash := range change.Dependencies() {
			_, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), nodeMap[hash.String()], n)
			if err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func RenderToDir(doc *automerge.Doc, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	tf := filepath.Join(dir, fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderDocToSvg(doc, tf); err != nil {
		return "", err
	}
	return tf, nil
}
