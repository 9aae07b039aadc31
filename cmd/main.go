package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/readline"

	"github.com/GregoryJC/janusgraph"
	"github.com/GregoryJC/janusgraph/mgmt"
	"github.com/GregoryJC/janusgraph/schema"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("indexes"),
	readline.PcItem("status"),

	readline.PcItem("mk-key"),
	readline.PcItem("mk-label"),
	readline.PcItem("mk-index"),
	readline.PcItem("mk-relindex"),

	readline.PcItem("enable"),
	readline.PcItem("disable"),
	readline.PcItem("repair"),
	readline.PcItem("remove"),
	readline.PcItem("await"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `index administration commands:
  indexes                           list indexes with their statuses
  mk-key <name>                     create a property key
  mk-label <name>                   create an edge label
  mk-index <name> <key> [key...]    build a composite vertex index
  mk-relindex <label> <name> <key>  build a relation index (both directions)
  status <name> | <label> <name>    committed and per-replica statuses
  enable | disable <index>          commit a status transition
  repair | remove <index>           run the scan job, wait for the result
  await <index> <STATUS> [seconds]  poll replicas until convergence
  exit | quit
`

type admin struct {
	g *janusgraph.Graph
	m *mgmt.Management
}

// resolveIndex accepts either "<name>" for a graph index or
// "<label> <name>" for a relation index.
func (a *admin) resolveIndex(args []string) (*schema.Index, error) {
	switch len(args) {
	case 1:
		return a.g.GraphIndex(args[0])
	case 2:
		return a.g.RelationIndex(args[0], args[1])
	default:
		return nil, fmt.Errorf("expected <name> or <label> <name>")
	}
}

func (a *admin) listIndexes() error {
	indexes, err := a.g.Indexes()
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		fmt.Printf("%-30s %-10s %s\n", idx.QualifiedName(), idx.Kind.String(), idx.Status.String())
	}
	return nil
}

func (a *admin) showStatus(args []string) error {
	idx, err := a.resolveIndex(args)
	if err != nil {
		return err
	}
	committed, err := a.g.IndexStatus(idx)
	if err != nil {
		return err
	}
	fmt.Printf("%s committed=%s", idx.QualifiedName(), committed.String())
	for i, r := range a.g.Replicas() {
		s, err := r.IndexStatus(idx)
		if err != nil {
			return err
		}
		fmt.Printf(" replica%d=%s", i, s.String())
	}
	fmt.Println()
	return nil
}

func (a *admin) update(ctx context.Context, args []string, action schema.Action) error {
	idx, err := a.resolveIndex(args)
	if err != nil {
		return err
	}
	f, err := a.m.UpdateIndex(ctx, idx, action)
	if err != nil {
		return err
	}
	metrics, err := f.Get(ctx)
	if err != nil {
		return err
	}
	if action.RequiresScan() {
		for name, value := range metrics.Snapshot() {
			fmt.Printf("%s=%d ", name, value)
		}
		fmt.Println()
	} else {
		fmt.Println("ok")
	}
	return nil
}

func parseStatus(s string) (schema.Status, error) {
	switch strings.ToUpper(s) {
	case "INSTALLED":
		return schema.StatusInstalled, nil
	case "REGISTERED":
		return schema.StatusRegistered, nil
	case "ENABLED":
		return schema.StatusEnabled, nil
	case "DISABLED":
		return schema.StatusDisabled, nil
	default:
		return 0, fmt.Errorf("unknown status %s", s)
	}
}

func (a *admin) await(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected <index> <STATUS> [seconds]")
	}
	timeout := mgmt.DefaultAwaitTimeout
	if secs, err := strconv.Atoi(args[len(args)-1]); err == nil {
		timeout = time.Duration(secs) * time.Second
		args = args[:len(args)-1]
	}
	target, err := parseStatus(args[len(args)-1])
	if err != nil {
		return err
	}
	args = args[:len(args)-1]

	var watch *mgmt.StatusWatcher
	switch len(args) {
	case 1:
		watch = mgmt.AwaitGraphIndexStatus(a.g, args[0])
	case 2:
		watch = mgmt.AwaitRelationIndexStatus(a.g, args[0], args[1])
	default:
		return fmt.Errorf("expected <name> or <label> <name>")
	}
	report, err := watch.Status(target).Timeout(timeout).Call(ctx)
	if err != nil {
		return err
	}
	if !report.Succeeded {
		fmt.Printf("timed out after %s, observed %v\n", report.Elapsed.Round(time.Millisecond), report.Statuses)
		return nil
	}
	fmt.Printf("converged in %s\n", report.Elapsed.Round(time.Millisecond))
	return nil
}

func (a *admin) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Print(usage)
		return nil
	case "indexes":
		return a.listIndexes()
	case "mk-key":
		if len(args) != 1 {
			return fmt.Errorf("expected <name>")
		}
		_, err := a.g.Schema().MakePropertyKey(ctx, args[0])
		return err
	case "mk-label":
		if len(args) != 1 {
			return fmt.Errorf("expected <name>")
		}
		_, err := a.g.Schema().MakeEdgeLabel(ctx, args[0])
		return err
	case "mk-index":
		if len(args) < 2 {
			return fmt.Errorf("expected <name> <key> [key...]")
		}
		_, err := a.g.Schema().BuildCompositeIndex(ctx, args[0], schema.VertexElement, args[1:]...)
		return err
	case "mk-relindex":
		if len(args) != 3 {
			return fmt.Errorf("expected <label> <name> <sort-key>")
		}
		_, err := a.g.Schema().BuildRelationIndex(ctx, args[0], args[1], schema.Both, schema.Asc, args[2])
		return err
	case "status":
		return a.showStatus(args)
	case "enable":
		return a.update(ctx, args, schema.EnableIndex)
	case "disable":
		return a.update(ctx, args, schema.DisableIndex)
	case "repair":
		return a.update(ctx, args, schema.Reindex)
	case "remove":
		return a.update(ctx, args, schema.RemoveIndex)
	case "await":
		return a.await(ctx, args)
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
}

func main() {
	if len(os.Args) != 2 {
		_, _ = fmt.Fprintln(os.Stderr, "Usage: janusgraph <data-dir>")
		os.Exit(2)
	}

	g, err := janusgraph.Open(os.Args[1], janusgraph.Options{Name: "repl"})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	m := mgmt.New(g, g.ScanEngine())
	a := &admin{g: g, m: m}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".janusgraph_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	ctx := context.Background()
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		cmd := args[0]
		args = args[1:]

		if cmd == "exit" || cmd == "quit" {
			break
		}
		if err := a.dispatch(ctx, cmd, args); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
	if err := g.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
