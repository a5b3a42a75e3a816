package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sttworker/pkg/types"
)

func runModels(cmd *cobra.Command, flags *rootFlags, asJSON bool) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, closer := newLogger(cfg, cmd.ErrOrStderr())
	defer closer.Close()
	log = log.Level(zerolog.WarnLevel)

	reg, err := discoverModels(cfg, log)
	if err != nil {
		return err
	}
	models := make([]types.Model, 0, reg.Len())
	for _, d := range reg.List() {
		models = append(models, types.Model{
			ID:       d.ID,
			Provider: cfg.Provider.Prefix + ":" + d.ID,
			Path:     d.Path,
			Root:     d.Root,
			Device:   d.Device(),
		})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(types.ModelsResponse{Models: models})
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tDEVICE\tPATH")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Provider, m.Device, m.Path)
	}
	return tw.Flush()
}
