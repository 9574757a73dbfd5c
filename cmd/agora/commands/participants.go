package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agora/registry"
)

var participantsJSON bool

var participantsCmd = &cobra.Command{
	Use:   "participants",
	Short: "List the participant registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := registry.Default()
		if cfg.Participants.Glob != "" {
			if reg, err = registry.Load(afero.NewOsFs(), cfg.Participants.Glob); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if participantsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reg.All())
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tKEYWORDS\tDELEGATE")
		for _, p := range reg.All() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, strings.Join(p.Keywords, ","), p.Delegate)
		}
		return tw.Flush()
	},
}

func init() {
	participantsCmd.Flags().BoolVar(&participantsJSON, "json", false, "Print profiles as JSON")
}
