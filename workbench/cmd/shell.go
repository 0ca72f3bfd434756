package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"chunker/types"
	"chunker/workbench"
	"chunker/workbench/collection"
	"chunker/workbench/export"

	"github.com/google/shlex"
)

var errQuit = errors.New("quit")

const previewLen = 60

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// shell is a line oriented front-end over a workbench. Positions typed by
// the user are 1-based.
type shell struct {
	wb        *workbench.Workbench
	exportDir string
	out       io.Writer

	text string
	req  types.ProcessRequest

	commands map[string]command
}

func newShell(wb *workbench.Workbench, exportDir string, out io.Writer) *shell {
	s := &shell{wb: wb, exportDir: exportDir, out: out}
	s.req.ApplyDefaults()
	s.commands = map[string]command{
		"help":        {"help", s.help},
		"load":        {"load <file>", s.load},
		"text":        {"text <text>", s.setText},
		"set":         {"set <method|size|overlap|threshold|separators|clean|summary> <value>", s.set},
		"options":     {"options", s.options},
		"process":     {"process", s.process},
		"batch":       {"batch", s.batch},
		"status":      {"status", s.status},
		"list":        {"list", s.list},
		"show":        {"show <n>", s.show},
		"edit":        {"edit <n> <text>", s.edit},
		"add":         {"add [n] [text]", s.add},
		"del":         {"del <n>", s.del},
		"move":        {"move <from> <to>", s.move},
		"clean":       {"clean <n>", s.enrich(types.ActionClean)},
		"summarize":   {"summarize <n>", s.enrich(types.ActionSummarize)},
		"use-summary": {"use-summary <n>", s.useSummary},
		"select":      {"select <n>...", s.toggle},
		"clear":       {"clear", s.clear},
		"export":      {"export <json|txt|md> [all]", s.export},
		"cancel":      {"cancel", s.cancel},
		"quit":        {"quit", func(context.Context, []string) error { return errQuit }},
	}
	s.commands["exit"] = s.commands["quit"]
	return s
}

func (s *shell) Run(ctx context.Context, in io.Reader) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.prompt()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := s.Exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				fmt.Fprintln(s.out, "error:", err)
			}
			s.prompt()
		}
	}
}

func (s *shell) prompt() {
	fmt.Fprint(s.out, "> ")
}

// Exec runs one command line.
func (s *shell) Exec(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := s.commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return cmd.run(ctx, args[1:])
}

func (s *shell) help(context.Context, []string) error {
	for _, name := range []string{"load", "text", "set", "options", "process", "batch", "status", "list", "show",
		"edit", "add", "del", "move", "clean", "summarize", "use-summary", "select", "clear", "export", "cancel", "quit"} {
		fmt.Fprintln(s.out, "  "+s.commands[name].usage)
	}
	return nil
}

func (s *shell) load(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("load <file>")
	}
	text, err := s.wb.LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	s.text = text
	fmt.Fprintf(s.out, "loaded %d characters\n", utf8.RuneCountInString(text))
	return nil
}

func (s *shell) setText(_ context.Context, args []string) error {
	if len(args) == 0 {
		return usage("text <text>")
	}
	s.text = strings.Join(args, " ")
	return nil
}

func (s *shell) set(_ context.Context, args []string) error {
	if len(args) < 2 {
		return usage("set <option> <value>")
	}
	opts := &s.req.ChunkingOptions
	value := args[1]
	switch args[0] {
	case "method":
		opts.Method = types.ChunkingMethod(value)
	case "size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		opts.ChunkSize = n
	case "overlap":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		opts.ChunkOverlap = n
	case "threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		opts.SemanticThreshold = &f
	case "separators":
		opts.Separators = args[1:]
	case "clean":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		s.req.ProcessingOptions.CleanText = b
	case "summary":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		s.req.ProcessingOptions.GenerateSummary = b
	default:
		return fmt.Errorf("unknown option %q", args[0])
	}
	return nil
}

func (s *shell) options(context.Context, []string) error {
	o := s.req.ChunkingOptions
	threshold := types.DefaultSemanticThreshold
	if o.SemanticThreshold != nil {
		threshold = *o.SemanticThreshold
	}
	fmt.Fprintf(s.out, "method=%s size=%d overlap=%d threshold=%.2f separators=%q clean=%t summary=%t\n",
		o.Method, o.ChunkSize, o.ChunkOverlap, threshold, o.Separators,
		s.req.ProcessingOptions.CleanText, s.req.ProcessingOptions.GenerateSummary)
	return nil
}

func (s *shell) request() (types.ProcessRequest, error) {
	if s.text == "" {
		return types.ProcessRequest{}, errors.New("no text, use load or text first")
	}
	req := s.req
	req.Text = s.text
	return req, nil
}

func (s *shell) process(ctx context.Context, _ []string) error {
	req, err := s.request()
	if err != nil {
		return err
	}
	return s.wb.Submit(ctx, req)
}

func (s *shell) batch(ctx context.Context, _ []string) error {
	req, err := s.request()
	if err != nil {
		return err
	}
	_, err = s.wb.SubmitBatch(ctx, req)
	return err
}

func (s *shell) status(context.Context, []string) error {
	st := s.wb.Stream.State()
	fmt.Fprintf(s.out, "stream %s: %d/%d processed, %d chunks, %d selected, %d pending\n",
		st.Status, st.ProcessedCount, st.TotalExpected, s.wb.Collection.Len(),
		len(s.wb.Collection.Selection()), s.wb.Enrich.Pending())
	if st.Err != nil {
		fmt.Fprintln(s.out, "last error:", st.Err)
	}
	return nil
}

func (s *shell) list(context.Context, []string) error {
	for i, e := range s.wb.Collection.Entries() {
		mark := " "
		if s.wb.Collection.IsSelected(i) {
			mark = "*"
		}
		busy := ""
		if action, ok := s.wb.Enrich.InFlight(i); ok {
			busy = " (" + string(action) + "...)"
		}
		tokens := ""
		if e.Chunk.TokenCount != nil {
			tokens = fmt.Sprintf(" [%d tok]", *e.Chunk.TokenCount)
		}
		fmt.Fprintf(s.out, "%s%3d%s%s %s\n", mark, i+1, tokens, busy, preview(e.Chunk.Content))
	}
	return nil
}

func (s *shell) show(_ context.Context, args []string) error {
	pos, err := position(args, "show <n>")
	if err != nil {
		return err
	}
	e, err := s.wb.Collection.Get(pos)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, e.Chunk.Content)
	if e.Chunk.Summary != nil {
		fmt.Fprintln(s.out, "\nsummary:", *e.Chunk.Summary)
	}
	return nil
}

func (s *shell) edit(_ context.Context, args []string) error {
	if len(args) < 2 {
		return usage("edit <n> <text>")
	}
	pos, err := position(args[:1], "edit <n> <text>")
	if err != nil {
		return err
	}
	return s.wb.Collection.EditContent(pos, strings.Join(args[1:], " "))
}

func (s *shell) add(_ context.Context, args []string) error {
	pos := collection.Tail
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			if n < 1 {
				return fmt.Errorf("add %d: %w", n, collection.ErrInvalidPosition)
			}
			pos = n - 1
			args = args[1:]
		}
	}
	_, err := s.wb.Collection.Insert(types.Chunk{Content: strings.Join(args, " ")}, pos)
	return err
}

func (s *shell) del(_ context.Context, args []string) error {
	pos, err := position(args, "del <n>")
	if err != nil {
		return err
	}
	return s.wb.Collection.Delete(pos)
}

func (s *shell) move(_ context.Context, args []string) error {
	if len(args) != 2 {
		return usage("move <from> <to>")
	}
	from, err := position(args[:1], "move <from> <to>")
	if err != nil {
		return err
	}
	to, err := position(args[1:], "move <from> <to>")
	if err != nil {
		return err
	}
	return s.wb.Collection.Move(from, to)
}

func (s *shell) enrich(action types.EnrichAction) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		pos, err := position(args, string(action)+" <n>")
		if err != nil {
			return err
		}
		_, err = s.wb.Enrich.Request(ctx, pos, action)
		return err
	}
}

func (s *shell) useSummary(_ context.Context, args []string) error {
	pos, err := position(args, "use-summary <n>")
	if err != nil {
		return err
	}
	return s.wb.Collection.UseSummary(pos)
}

func (s *shell) toggle(_ context.Context, args []string) error {
	if len(args) == 0 {
		return usage("select <n>...")
	}
	for _, a := range args {
		pos, err := position([]string{a}, "select <n>...")
		if err != nil {
			return err
		}
		if _, err := s.wb.Collection.ToggleSelect(pos); err != nil {
			return err
		}
	}
	return nil
}

func (s *shell) clear(context.Context, []string) error {
	s.wb.Collection.ClearSelection()
	return nil
}

func (s *shell) export(_ context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usage("export <json|txt|md> [all]")
	}
	format, err := export.ParseFormat(args[0])
	if err != nil {
		return err
	}
	scope := export.SelectionIfNonEmpty
	if len(args) == 2 && args[1] == "all" {
		scope = export.All
	}
	f, err := s.wb.Export(format, scope)
	if err != nil {
		return err
	}
	path, err := f.WriteTo(s.exportDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "wrote", path)
	return nil
}

func (s *shell) cancel(context.Context, []string) error {
	s.wb.Stream.Cancel()
	return nil
}

func position(args []string, use string) (int, error) {
	if len(args) != 1 {
		return 0, usage(use)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", args[0])
	}
	if n < 1 {
		return 0, fmt.Errorf("%d: %w", n, collection.ErrInvalidPosition)
	}
	return n - 1, nil
}

func usage(u string) error {
	return fmt.Errorf("usage: %s", u)
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	r := []rune(s)
	return string(r[:previewLen]) + "..."
}
