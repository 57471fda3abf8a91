// Package lookup implements the lookup command.
package lookup

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/interpro-loader/internal/app"
	"github.com/tphakala/interpro-loader/internal/datastore"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/ingest"
	"github.com/tphakala/interpro-loader/internal/logger"
)

// Options selects the related records printed for an entry or subject.
type Options struct {
	ByName      bool
	Children    bool
	Ancestors   bool
	Xrefs       bool
	Annotations bool
}

// EntryView is an entry with its optional relations.
type EntryView struct {
	Accession string                   `yaml:"accession"`
	Name      string                   `yaml:"name"`
	Type      string                   `yaml:"type"`
	Parent    string                   `yaml:"parent,omitempty"`
	Children  []string                 `yaml:"children,omitempty"`
	Ancestors []string                 `yaml:"ancestors,omitempty"`
	Xrefs     []datastore.CrossRefTerm `yaml:"xrefs,omitempty"`
}

// SubjectView is a subject with its optional annotations.
type SubjectView struct {
	Accession   string                     `yaml:"accession"`
	Annotations []datastore.AnnotationView `yaml:"annotations,omitempty"`
}

// Command returns the lookup command.
func Command(appCtx *app.Context) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "lookup <kind> <key> | lookup roots",
		Short: "Look up a stored record by its natural key",
		Long: `Look up a type, entry, GO term or protein by its natural key.

Kinds: type, entry, xref (or go), subject (or protein).
GO keys may be given with or without the "GO:" prefix.

Examples:
  interpro-loader lookup entry IPR000008 --children --xrefs
  interpro-loader lookup entry "C2 domain" --by-name --ancestors
  interpro-loader lookup go 0003677
  interpro-loader lookup protein P12345 --annotations
  interpro-loader lookup roots`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := appCtx.OpenStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					appCtx.Log.Warn("failed to close store", logger.Error(err))
				}
			}()

			ctx := cmd.Context()
			if args[0] == "roots" {
				return printRoots(ctx, cmd.OutOrStdout(), store)
			}
			if len(args) != 2 {
				return fmt.Errorf("lookup %s requires a key", args[0])
			}
			view, err := Lookup(ctx, ingest.New(store, nil, appCtx.Log), store, args[0], args[1], opts)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.ByName, "by-name", false, "Match entries by name instead of accession")
	flags.BoolVar(&opts.Children, "children", false, "Include direct children of an entry")
	flags.BoolVar(&opts.Ancestors, "ancestors", false, "Include the parent chain of an entry, nearest first")
	flags.BoolVar(&opts.Xrefs, "xrefs", false, "Include GO terms linked to an entry")
	flags.BoolVar(&opts.Annotations, "annotations", false, "Include annotations of a protein")
	return cmd
}

// Lookup resolves key of kind and returns a printable view. A missing
// record is a NotFound error.
func Lookup(ctx context.Context, orchestrator *ingest.Orchestrator, store *datastore.Store, kindName, key string, opts Options) (any, error) {
	kind, ok := datastore.ParseKind(kindName)
	if !ok {
		return nil, errors.New(datastore.ErrUnknownKind).
			Component("lookup").
			Category(errors.CategoryValidation).
			Context("kind", kindName).
			Build()
	}

	var (
		rec   datastore.Record
		found bool
		err   error
	)
	if kind == datastore.KindEntry && opts.ByName {
		var entry *datastore.Entry
		entry, err = store.FindEntryByName(ctx, key)
		if errors.Is(err, datastore.ErrNotFound) {
			err = nil
		} else if err == nil {
			rec, found = entry, true
		}
	} else {
		rec, found, err = orchestrator.GetByKey(ctx, kind, key)
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New(datastore.ErrNotFound).
			Component("lookup").
			Category(errors.CategoryNotFound).
			Context("kind", string(kind)).
			Context("key", key).
			Build()
	}

	switch r := rec.(type) {
	case *datastore.Entry:
		return entryView(ctx, store, r, opts)
	case *datastore.Subject:
		view := SubjectView{Accession: r.Accession}
		if opts.Annotations {
			if view.Annotations, err = store.AnnotationsForSubject(ctx, r.ID); err != nil {
				return nil, err
			}
		}
		return view, nil
	default:
		return rec, nil
	}
}

func entryView(ctx context.Context, store *datastore.Store, e *datastore.Entry, opts Options) (*EntryView, error) {
	typeName, err := store.TypeName(ctx, e.TypeID)
	if err != nil {
		return nil, err
	}
	view := &EntryView{Accession: e.Accession, Name: e.Name, Type: typeName}

	if e.ParentID != nil {
		parent, err := store.GetEntryByID(ctx, *e.ParentID)
		if err != nil {
			return nil, err
		}
		view.Parent = parent.Accession
	}
	if opts.Children {
		children, err := store.Children(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		view.Children = accessions(children)
	}
	if opts.Ancestors {
		ancestors, err := store.Ancestors(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		view.Ancestors = accessions(ancestors)
	}
	if opts.Xrefs {
		if view.Xrefs, err = store.TermsForEntry(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func printRoots(ctx context.Context, w io.Writer, store *datastore.Store) error {
	roots, err := store.Roots(ctx)
	if err != nil {
		return err
	}
	for _, r := range roots {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Accession, r.Name)
	}
	return nil
}

func accessions(entries []datastore.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Accession
	}
	return out
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
