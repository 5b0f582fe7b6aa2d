package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unlockOwner string

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force-release the Action Lock, bypassing the normal per-call acquire/release cycle",
	RunE:  runUnlock,
}

func init() {
	unlockCmd.Flags().StringVar(&unlockOwner, "owner", "", "agent tag to release (defaults to this process's own tag)")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	coord, err := buildCoordination()
	if err != nil {
		return err
	}

	owner := unlockOwner
	if owner == "" {
		owner = coord.sess.EnsureAgentTag()
	}

	if coord.lock.Release(owner) {
		fmt.Printf("released action lock held by %s\n", owner)
		return nil
	}
	fmt.Printf("no action lock held by %s (already free, or held by another owner)\n", owner)
	return nil
}
