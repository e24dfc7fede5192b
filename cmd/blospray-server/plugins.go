package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/plugin/builtin"
)

func pluginsCmd() *cobra.Command {
	var (
		configPath string
		pluginDir  string
	)

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List available plugins and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if pluginDir != "" {
				cfg.PluginDir = pluginDir
			}

			reg := plugin.NewRegistry()
			builtin.Register(reg)
			modules := plugin.SharedObjectLoader{Dir: cfg.PluginDir}
			found, err := modules.Modules()
			if err != nil {
				return err
			}

			host := plugin.NewHost(newLogger(io.Discard, "error", "text"), reg, modules)
			defer host.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLUGIN\tSOURCE\tPARAMETERS")
			list := func(ids []plugin.ID, source string) {
				for _, id := range ids {
					def, err := host.Definition(id.Kind, id.Name)
					if err != nil {
						fmt.Fprintf(w, "%s\t%s\terror: %v\n", id, source, err)
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", id, source, describeParams(def.Parameters))
				}
			}
			list(reg.IDs(), "builtin")
			list(found, modules.Dir)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "Directory holding <kind>_<name>.so modules")

	return cmd
}

func describeParams(params []plugin.Parameter) string {
	if len(params) == 0 {
		return "-"
	}
	var s string
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s:%s", p.Name, p.Type)
		if p.Length > 1 {
			s += fmt.Sprintf("[%d]", p.Length)
		}
		if p.Optional() {
			s += "?"
		}
	}
	return s
}
