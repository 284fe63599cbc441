// Package session implements the "docstore session" command group:
// one-shot load/store/delete against an ad-hoc session, opened and
// saved within a single command invocation.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docdbgo/driver/cmd/util"
	"github.com/docdbgo/driver/store"
)

var (
	docStore *store.Store

	// SessionCommands represents the session command group.
	SessionCommands = &cobra.Command{
		Use:               "session",
		Short:             "Load, store, and delete documents through a session",
		PersistentPreRunE: setupStore,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if docStore != nil {
				_ = docStore.Close()
			}
		},
	}

	loadCmd = &cobra.Command{
		Use:   "load [id]",
		Short: "Load a document by id and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := docStore.OpenSession("")
			if err != nil {
				return err
			}
			doc, err := sess.Load(context.Background(), args[0], nil)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc.Entity, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	storeCmd = &cobra.Command{
		Use:   "store [id] [json]",
		Short: "Store a document and commit it immediately",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entity map[string]interface{}
			if err := json.Unmarshal([]byte(args[1]), &entity); err != nil {
				return fmt.Errorf("invalid json: %w", err)
			}

			sess, err := docStore.OpenSession("")
			if err != nil {
				return err
			}
			doc, err := sess.Store(entity, args[0], "")
			if err != nil {
				return err
			}
			if _, err := sess.SaveChanges(context.Background()); err != nil {
				return err
			}
			fmt.Println(doc.ChangeVector)
			return nil
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a document and commit it immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := docStore.OpenSession("")
			if err != nil {
				return err
			}
			if err := sess.Delete(args[0]); err != nil {
				return err
			}
			if _, err := sess.SaveChanges(context.Background()); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupStoreFlags(SessionCommands)

	SessionCommands.AddCommand(loadCmd)
	SessionCommands.AddCommand(storeCmd)
	SessionCommands.AddCommand(deleteCmd)
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
