// Command faslinfo drives the fasl package against real files: load runs a
// stream through the loader to EOF, dump decodes and prints a single value.
package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daedaluz/scanlisp/debugflags"
	"github.com/daedaluz/scanlisp/fasl"
	"github.com/daedaluz/scanlisp/port"
	"github.com/daedaluz/scanlisp/value"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "faslinfo",
		Short: "Inspect FASL binary streams",
	}
	root.AddCommand(loadCmd(), dumpCmd())
	return root
}

func openReader() (*debugflags.Flags, *value.Heap, *fasl.Reader, error) {
	flags, err := debugflags.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading debug flags: %w", err)
	}
	heap := value.NewHeap()
	r := fasl.NewReader(heap, fasl.NewOptions().SetDebug(flags))
	return flags, heap, r, nil
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Run a FASL stream through the loader to EOF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := port.OpenFile(args[0], syscall.O_RDONLY, 0)
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer p.Close()

			_, _, r, err := openReader()
			if err != nil {
				return err
			}
			if err := r.Load(p); err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			for _, entry := range r.LoadUnitTrail(p) {
				fmt.Println(entry)
			}
			return nil
		},
	}
}

func dumpCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Decode a single FASL value and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := port.OpenFile(args[0], syscall.O_RDONLY, 0)
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer p.Close()

			_, _, r, err := openReader()
			if err != nil {
				return err
			}
			v, err := r.ReadValue(p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			switch format {
			case "", "text":
				fmt.Println(describe(v))
			case "msgpack":
				out, err := encodeMsgpack(v)
				if err != nil {
					return fmt.Errorf("encoding msgpack: %w", err)
				}
				os.Stdout.Write(out)
			default:
				return fmt.Errorf("unknown --format %q", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", `output format: "text" or "msgpack"`)
	return cmd
}

// describe renders v as a short human-readable summary. Shared structure
// and cycles are not expanded; describe stops at the first already-visited
// pointer and prints "#<ref>" instead of recursing forever.
func describe(v value.Value) string {
	visited := make(map[value.Value]bool)
	return describeValue(v, visited)
}

func describeValue(v value.Value, visited map[value.Value]bool) string {
	switch t := v.(type) {
	case value.Nil:
		return "nil"
	case value.Bool:
		if t.V {
			return "true"
		}
		return "false"
	case value.Char:
		return fmt.Sprintf("#\\%c", t.V)
	case value.Fixnum:
		return fmt.Sprintf("%d", t.V)
	case value.Flonum:
		return fmt.Sprintf("%g", t.V)
	case value.Complex:
		return fmt.Sprintf("%g+%gi", t.Re, t.Im)
	case *value.String:
		return fmt.Sprintf("%q", t.String())
	case *value.Symbol:
		if t.Home != nil {
			return t.Home.Name + ":" + t.Name
		}
		return "#:" + t.Name
	case *value.Package:
		return "#<package " + t.Name + ">"
	case *value.Cons:
		if visited[v] {
			return "#<ref>"
		}
		visited[v] = true
		out := "("
		var cur value.Value = t
		first := true
		for {
			cons, ok := cur.(*value.Cons)
			if !ok {
				if _, isNil := cur.(value.Nil); !isNil {
					out += " . " + describeValue(cur, visited)
				}
				break
			}
			if !first {
				out += " "
			}
			first = false
			if visited[cons] && cons != t {
				out += "#<ref>"
				break
			}
			visited[cons] = true
			out += describeValue(cons.Car, visited)
			cur = cons.Cdr
		}
		return out + ")"
	case *value.Vector:
		if visited[v] {
			return "#<ref>"
		}
		visited[v] = true
		out := "#("
		for i, e := range t.Elems {
			if i > 0 {
				out += " "
			}
			out += describeValue(e, visited)
		}
		return out + ")"
	case *value.Instance:
		return fmt.Sprintf("#<instance %d slots>", len(t.Slots))
	case *value.Closure:
		return "#<closure>"
	case *value.Subr:
		return "#<subr " + t.Name + ">"
	case value.EOF:
		return "#<eof>"
	default:
		return fmt.Sprintf("#<%s>", v.Kind())
	}
}
