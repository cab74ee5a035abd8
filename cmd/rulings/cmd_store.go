package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajitpratap0/rulings/internal/models"
)

// entryFlags collects the optional entry fields shared by add, set, edit and propose.
type entryFlags struct {
	title     string
	content   string
	tags      string
	archetype string
	format    string
}

func (f *entryFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.title, "title", "", "display title (default: the key)")
	fs.StringVar(&f.content, "content", "", "ruling text")
	fs.StringVar(&f.tags, "tags", "", "comma-separated tags")
	fs.StringVar(&f.archetype, "archetype", "", "archetype or category")
	fs.StringVar(&f.format, "format", "", "game format")
}

// optional returns a pointer to val only when the flag was set.
func optional(fs *pflag.FlagSet, name, val string) *string {
	if !fs.Changed(name) {
		return nil
	}
	return &val
}

func (f *entryFlags) raw(fs *pflag.FlagSet, key string) models.RawEntry {
	raw := models.RawEntry{
		Key:       key,
		Title:     optional(fs, "title", f.title),
		Content:   optional(fs, "content", f.content),
		Archetype: optional(fs, "archetype", f.archetype),
		Format:    optional(fs, "format", f.format),
	}
	if fs.Changed("tags") {
		raw.Tags = models.ParseTagList(f.tags)
	}
	return raw
}

func (f *entryFlags) patch(fs *pflag.FlagSet) models.EntryPatch {
	p := models.EntryPatch{
		Title:     optional(fs, "title", f.title),
		Content:   optional(fs, "content", f.content),
		Archetype: optional(fs, "archetype", f.archetype),
		Format:    optional(fs, "format", f.format),
	}
	if fs.Changed("tags") {
		tags := models.ParseTagList(f.tags)
		p.Tags = &tags
	}
	return p
}

func addCmd() *cobra.Command {
	var ef entryFlags

	cmd := &cobra.Command{
		Use:   "add [key]",
		Short: "Add a new ruling; fails if the key already exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "add")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			e, err := svc.Add(ctx, ef.raw(cmd.Flags(), args[0]))
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			fmt.Printf("Added %q\n", e.Key)
			return nil
		},
	}

	ef.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func setCmd() *cobra.Command {
	var ef entryFlags

	cmd := &cobra.Command{
		Use:   "set [key]",
		Short: "Insert or fully replace a ruling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "set")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			e, result, err := svc.Put(ctx, ef.raw(cmd.Flags(), args[0]))
			if err != nil {
				return fmt.Errorf("set: %w", err)
			}
			fmt.Printf("%s %q\n", result, e.Key)
			return nil
		},
	}

	ef.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func editCmd() *cobra.Command {
	var ef entryFlags

	cmd := &cobra.Command{
		Use:   "edit [key]",
		Short: "Change selected fields of an existing ruling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := ef.patch(cmd.Flags())
			if patch.IsEmpty() {
				return fmt.Errorf("edit: nothing to change (set at least one of --title, --content, --tags, --archetype, --format)")
			}

			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "edit")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			e, err := svc.Edit(ctx, args[0], patch)
			if err != nil {
				return fmt.Errorf("edit: %w", err)
			}
			fmt.Printf("Updated %q\n", e.Key)
			return nil
		},
	}

	ef.register(cmd.Flags())
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key]",
		Short: "Delete a ruling by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, svc, err := openAll(ctx, logger, "delete")
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := svc.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			fmt.Printf("Deleted %q\n", args[0])
			return nil
		},
	}
}
