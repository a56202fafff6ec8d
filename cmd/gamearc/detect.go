// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woozymasta/gamearc"
)

func (a *app) detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Score every known format against files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := a.registry()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tPROBE\tSCORE\tSELECTED")

			for _, path := range args {
				ranked, err := rankFile(registry, path)
				if err != nil {
					return err
				}

				for i, c := range ranked {
					selected := ""
					if i == 0 && c.Score >= a.cfg.MinScore && c.Score > 0 {
						selected = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", path, c.Name(), c.Score, selected)
				}
			}

			return tw.Flush()
		},
	}
}

// rankFile scores probes against header of path.
func rankFile(registry *gamearc.Registry, path string) ([]gamearc.Candidate, error) {
	src, err := gamearc.OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	in, err := gamearc.NewInput(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return registry.Rank(in), nil
}
