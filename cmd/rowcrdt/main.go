// Command rowcrdt is a readline REPL running one replica of the record
// store: local crdt.Store, persisted through storage.Engine, replicated
// to peers through netsync.Net, adapted from the teacher's cmd/main.go +
// repl/ package.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/index"
	"github.com/drpcorg/recordcrdt/netsync"
	"github.com/drpcorg/recordcrdt/rlog"
	"github.com/drpcorg/recordcrdt/rowid"
	"github.com/drpcorg/recordcrdt/storage"
	"github.com/drpcorg/recordcrdt/wire"
	"github.com/ergochat/readline"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("insert"),
	readline.PcItem("update"),
	readline.PcItem("delete"),
	readline.PcItem("show"),
	readline.PcItem("changes-since"),
	readline.PcItem("listen"),
	readline.PcItem("connect"),
	readline.PcItem("revert"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}

// replica bundles one running node's store, persistence, replication,
// and index, all guarded by one lock: spec.md's core asks for external
// synchronization when driven from more than one goroutine, and this
// process drives it from the REPL loop, the netsync peer goroutines, and
// the hub's notify fan-out.
type replica struct {
	mu    sync.Mutex
	log   rlog.Logger
	store *crdt.Store[string, any]
	eng   *storage.Engine
	net   *netsync.Net
	hub   *netsync.Hub
	idx   *index.HashIndex
}

func openReplica(nodeID uint64, dir string, log rlog.Logger) (*replica, error) {
	codec := wire.ScalarCodec{}

	eng, err := storage.Open(dir, log, codec)
	if err != nil {
		return nil, err
	}

	history, err := eng.LoadSince(0)
	if err != nil {
		eng.Close()
		return nil, err
	}

	r := &replica{log: log, eng: eng}
	r.idx = index.New(codec, 10000)

	r.store = crdt.NewStore[string, any](nodeID,
		crdt.WithPreloaded(history),
		crdt.WithOnApplied[string, any](r.onApplied),
	)
	r.idx.Rebuild(r.store.GetData())

	r.hub = netsync.NewHub(r.store, &r.mu, codec)
	r.net = netsync.NewNet(log, r.hub.Install, r.hub.Destroy)
	return r, nil
}

// onApplied runs under r.mu (every store-mutating call holds it) for
// every Change the store actually applies: it persists the change, keeps
// the hash index current, and wakes any connected peer's Feed loop.
func (r *replica) onApplied(ch crdt.Change[string, any]) {
	if err := r.eng.Append([]crdt.Change[string, any]{ch}); err != nil {
		r.log.Error("rowcrdt: persist failed", "err", err)
	}
	r.idx.OnApplied(ch)
	if r.hub != nil {
		r.hub.NotifyApplied(ch)
	}
}

func (r *replica) Close() error {
	if r.net != nil {
		r.net.Close()
	}
	return r.eng.Close()
}

func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func parseFields(args []string) map[string]any {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[kv[0]] = parseValue(kv[1])
	}
	return fields
}

func (r *replica) insertOrUpdate(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: insert <id|new> key=value [key=value ...]")
	}
	id := args[0]
	if id == "new" {
		id = rowid.New()
	}
	fields := parseFields(args[1:])
	if len(fields) == 0 {
		return fmt.Errorf("no key=value pairs given")
	}

	r.mu.Lock()
	r.store.InsertOrUpdate(id, fields)
	r.mu.Unlock()

	fmt.Println(id)
	return nil
}

func (r *replica) delete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <id>")
	}
	r.mu.Lock()
	r.store.DeleteRecord(args[0])
	r.mu.Unlock()
	return nil
}

func (r *replica) show(args []string) error {
	r.mu.Lock()
	data := r.store.GetData()
	r.mu.Unlock()

	if len(args) == 0 {
		for id, fields := range data {
			fmt.Printf("%s: %v\n", id, fields)
		}
		return nil
	}
	for _, id := range args {
		fields, ok := data[id]
		if !ok {
			fmt.Printf("%s: (absent or deleted)\n", id)
			continue
		}
		fmt.Printf("%s: %v\n", id, fields)
	}
	return nil
}

func (r *replica) changesSince(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: changes-since <version>")
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}

	r.mu.Lock()
	changes := r.store.GetChangesSince(v)
	r.mu.Unlock()

	for _, ch := range changes {
		fmt.Printf("%+v\n", ch)
	}
	return nil
}

func (r *replica) revert() error {
	r.mu.Lock()
	changes := r.store.Revert()
	r.store.MergeChanges(changes, true)
	r.mu.Unlock()

	fmt.Printf("reverted %d change(s)\n", len(changes))
	return nil
}

func main() {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "rowcrdt> ",
		HistoryFile:     "/tmp/rowcrdt_history.tmp",
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

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: rowcrdt <node-id> [data-dir]")
		os.Exit(2)
	}
	nodeID, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "node-id must be a positive integer")
		os.Exit(2)
	}
	dir := fmt.Sprintf("rowcrdt-%d.db", nodeID)
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}
	dir, _ = filepath.Abs(dir)

	log := rlog.NewDefaultLogger(slog.LevelInfo)
	r, err := openReplica(nodeID, dir, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer r.Close()

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

		var cmdErr error
		switch cmd {
		case "help":
			fmt.Println("insert <id|new> k=v...  update <id> k=v...  delete <id>  show [id...]")
			fmt.Println("changes-since <v>  listen <addr>  connect <addr>  revert  quit")
		case "insert", "update":
			cmdErr = r.insertOrUpdate(args)
		case "delete":
			cmdErr = r.delete(args)
		case "show", "list":
			cmdErr = r.show(args)
		case "changes-since":
			cmdErr = r.changesSince(args)
		case "revert":
			cmdErr = r.revert()
		case "listen":
			if len(args) != 1 {
				cmdErr = fmt.Errorf("usage: listen <addr>")
				break
			}
			cmdErr = r.net.Listen(args[0])
		case "connect":
			if len(args) != 1 {
				cmdErr = fmt.Errorf("usage: connect <addr>")
				break
			}
			cmdErr = r.net.Connect(args[0])
		case "exit", "quit":
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintf(os.Stderr, "error executing %s: %s\n", cmd, cmdErr.Error())
		}
	}
}
