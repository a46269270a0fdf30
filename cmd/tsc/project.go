package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/chazu/touchscript/compiler"
	"github.com/chazu/touchscript/document"
	"github.com/chazu/touchscript/manifest"
	"github.com/chazu/touchscript/store"
)

// handleProjectCommand processes the `tsc project` subcommand.
// Usage:
//
//	tsc project list                   List saved projects
//	tsc project new <name>             Create an empty project
//	tsc project show <id>              Print a project's rows
//	tsc project save <id> <file>       Replace a project's document
//	tsc project rename <id> <name>     Rename a project
//	tsc project delete <id>            Delete a project
func handleProjectCommand(ctx context.Context, args []string, m *manifest.Manifest) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: tsc project [list|new|show|save|rename|delete] ...")
		os.Exit(2)
	}

	path := m.StorePath()
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return err
		}
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer st.Close()

	need := func(n int, usage string) error {
		if len(args) != n+1 {
			return fmt.Errorf("usage: tsc project %s", usage)
		}
		return nil
	}

	switch args[0] {
	case "list":
		return listProjects(ctx, st)
	case "new":
		if err := need(1, "new <name>"); err != nil {
			return err
		}
		p, err := st.Create(ctx, args[1])
		if err != nil {
			return err
		}
		empty, err := document.Marshal(&document.Document{})
		if err != nil {
			return err
		}
		if err := st.Save(ctx, p.ID, empty); err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	case "show":
		if err := need(1, "show <id>"); err != nil {
			return err
		}
		p, err := st.Load(ctx, args[1])
		if err != nil {
			return err
		}
		doc, err := document.Unmarshal(compiler.NewContext(), p.Document)
		if err != nil {
			return fmt.Errorf("project %s: %w", p.Name, err)
		}
		return document.Render(os.Stdout, doc)
	case "save":
		if err := need(2, "save <id> <file>"); err != nil {
			return err
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return err
		}
		// Reject documents that would not load back.
		if _, err := document.Unmarshal(compiler.NewContext(), data); err != nil {
			return fmt.Errorf("%s: %w", args[2], err)
		}
		return st.Save(ctx, args[1], data)
	case "rename":
		if err := need(2, "rename <id> <name>"); err != nil {
			return err
		}
		return st.Rename(ctx, args[1], args[2])
	case "delete":
		if err := need(1, "delete <id>"); err != nil {
			return err
		}
		return st.Delete(ctx, args[1])
	default:
		return fmt.Errorf("unknown project subcommand: %s", args[0])
	}
}

func listProjects(ctx context.Context, st *store.Store) error {
	projects, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODIFIED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.LastModified.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
