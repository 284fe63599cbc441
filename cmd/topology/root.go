// Package topology implements the "docstore topology" command group:
// inspecting the cluster view a store currently holds.
package topology

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docdbgo/driver/cmd/util"
	"github.com/docdbgo/driver/store"
)

var (
	docStore *store.Store

	// TopologyCommands represents the topology command group.
	TopologyCommands = &cobra.Command{
		Use:               "topology",
		Short:             "Inspect the cluster topology",
		PersistentPreRunE: setupStore,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if docStore != nil {
				_ = docStore.Close()
			}
		},
	}

	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the current topology's nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := docStore.NetworkState()
			if err != nil {
				return err
			}
			t := ns.Get()
			fmt.Printf("etag: %s\n", t.Etag)
			for _, n := range t.Nodes {
				fmt.Printf("  %s (database=%s health=%s cluster-tag=%s)\n", n.URL(), n.Database, n.Health(), n.ClusterTag)
			}
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupStoreFlags(TopologyCommands)
	TopologyCommands.AddCommand(showCmd)
}

func setupStore(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	s, err := util.OpenStore()
	if err != nil {
		return err
	}
	docStore = s
	return nil
}
