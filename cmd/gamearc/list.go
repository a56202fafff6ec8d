// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/gamearc"
)

// listing is machine-readable archive directory.
type listing struct {
	Archive   string      `json:"archive" yaml:"archive"`
	Probe     string      `json:"probe" yaml:"probe"`
	Resources []listEntry `json:"resources" yaml:"resources"`
	Score     int         `json:"score" yaml:"score"`
}

// listEntry is one resource row.
type listEntry struct {
	Properties gamearc.Properties   `json:"properties,omitempty" yaml:"properties,omitempty"`
	Name       string               `json:"name" yaml:"name"`
	Mode       gamearc.ResourceMode `json:"mode" yaml:"mode"`
	Codecs     []gamearc.CodecKind  `json:"codecs,omitempty" yaml:"codecs,omitempty"`
	Index      int                  `json:"index" yaml:"index"`
	Offset     int64                `json:"offset" yaml:"offset"`
	Stored     int64                `json:"stored" yaml:"stored"`
	Size       int64                `json:"size" yaml:"size"`
}

func (a *app) listCmd() *cobra.Command {
	var format string
	var include, exclude []string

	cmd := &cobra.Command{
		Use:   "list <archive>",
		Short: "Print archive directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = archive.Close() }()

			out, err := buildListing(archive, gamearc.NewResourceFilter(include, exclude))
			if err != nil {
				return err
			}

			return writeListing(cmd.OutOrStdout(), format, out)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json, yaml)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "only list resources matching patterns")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "skip resources matching patterns")
	return cmd
}

// buildListing collects selected resources of archive.
func buildListing(archive *gamearc.Archive, filter gamearc.ResourceFilter) (listing, error) {
	all := archive.Resources()
	selected, err := gamearc.FilterResources(all, filter)
	if err != nil {
		return listing{}, err
	}

	index := make(map[*gamearc.Resource]int, len(all))
	for i, res := range all {
		index[res] = i
	}

	out := listing{
		Archive:   archive.Path(),
		Probe:     archive.Probe(),
		Score:     archive.Score(),
		Resources: make([]listEntry, 0, len(selected)),
	}
	for _, res := range selected {
		entry := listEntry{
			Name:       res.Name,
			Mode:       res.Mode(),
			Index:      index[res],
			Offset:     res.Offset,
			Stored:     res.StoredLength(),
			Size:       res.DecompressedLength,
			Properties: res.Properties,
		}
		switch {
		case res.Plan != nil:
			entry.Codecs = res.Plan.Codecs()
		case res.Codec != "":
			entry.Codecs = []gamearc.CodecKind{res.Codec}
		}
		out.Resources = append(out.Resources, entry)
	}

	return out, nil
}

// writeListing renders listing in format.
func writeListing(w io.Writer, format string, out listing) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeListingTable(w, out)

	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()

	default:
		return fmt.Errorf("unknown list format %q", format)
	}
}

func writeListingTable(w io.Writer, out listing) error {
	fmt.Fprintf(w, "%s (%s, score %d)\n", out.Archive, out.Probe, out.Score)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "INDEX\tSTORED\tSIZE\tCODEC\t")
	var stored, size int64
	for _, e := range out.Resources {
		codecs := make([]string, len(e.Codecs))
		for i, c := range e.Codecs {
			codecs[i] = string(c)
		}
		if len(codecs) == 0 {
			codecs = append(codecs, "-")
		}

		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t %s\n",
			e.Index, e.Stored, e.Size, strings.Join(codecs, ","), gamearc.SanitizeDisplayName(e.Name))
		stored += e.Stored
		size += e.Size
	}
	fmt.Fprintf(tw, "\t%d\t%d\t\t %d resources\n", stored, size, len(out.Resources))

	return tw.Flush()
}
