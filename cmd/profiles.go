package cmd

import (
	"fmt"

	"vizdirector/core/director"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in show profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Profile", "Mode", "Scenes", "Smoothing", "Speed", "Capture"})
		for _, name := range director.ProfileNames() {
			p, err := director.LookupProfile(name)
			if err != nil {
				return err
			}
			tw.AppendRow(table.Row{p.Name, p.Mode, len(p.Catalog), p.Smoothing, p.TransitionSpeed, p.Capture})
		}
		fmt.Println(tw.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
