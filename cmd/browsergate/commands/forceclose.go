package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forceCloseAllCmd = &cobra.Command{
	Use:   "force-close-all",
	Short: "Tear down this process's window state and clear its registry entry",
	RunE:  runForceCloseAll,
}

func runForceCloseAll(cmd *cobra.Command, args []string) error {
	coord, err := buildCoordination()
	if err != nil {
		return err
	}

	if err := coord.wm.ForceCloseAll(coord.sess); err != nil {
		return fmt.Errorf("force close all: %w", err)
	}

	owner := coord.sess.AgentTag()
	if owner == "" {
		fmt.Println("window state torn down; this process has no agent tag, action lock and registry left unchanged")
	} else {
		coord.lock.Release(owner)
		if err := coord.reg.Unregister(owner); err != nil {
			fmt.Printf("warning: failed to clear registry entry for %s: %v\n", owner, err)
			fmt.Println("window state torn down, action lock released")
		} else {
			fmt.Println("window state torn down, action lock and registry entry released")
		}
	}
	fmt.Println(registrySnapshotLine(coord.reg.Snapshot()))
	return nil
}
