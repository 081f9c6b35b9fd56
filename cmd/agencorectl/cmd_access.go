package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/entitlement"
)

func init() {
	rootCmd.AddCommand(grantCmd, revokeCmd, agentsCmd)
	grantCmd.Flags().String("ref", "", "payment reference to store with the grant")
}

func catalog() (*agents.Registry, error) {
	list, err := agents.LoadFile(loadConfig().AgentsFile)
	if err != nil {
		return nil, err
	}
	return agents.NewRegistry(list)
}

func entitlements() (*entitlement.Service, *agents.Registry, error) {
	reg, err := catalog()
	if err != nil {
		return nil, nil, err
	}
	gdb, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return entitlement.NewService(entitlement.NewStore(gdb), reg), reg, nil
}

func paidAgent(reg *agents.Registry, id string) error {
	a, ok := reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown agent %q", id)
	}
	if a.IsFree() {
		return fmt.Errorf("agent %q is free; no grant needed", id)
	}
	return nil
}

var grantCmd = &cobra.Command{
	Use:   "grant <user-id> <agent-id>",
	Short: "Grant a user access to a paid agent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, reg, err := entitlements()
		if err != nil {
			return err
		}
		if err := paidAgent(reg, args[1]); err != nil {
			return err
		}
		var ref *string
		if r, _ := cmd.Flags().GetString("ref"); r != "" {
			ref = &r
		}
		if err := svc.Grant(cmd.Context(), args[0], args[1], ref); err != nil {
			return err
		}
		fmt.Printf("Granted %s to %s.\n", args[1], args[0])
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <user-id> <agent-id>",
	Short: "Revoke a user's access to a paid agent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := entitlements()
		if err != nil {
			return err
		}
		removed, err := svc.Revoke(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println("No grant found.")
			return nil
		}
		fmt.Printf("Revoked %s from %s.\n", args[1], args[0])
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := catalog()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRICE\tACTIVE")
		for _, a := range reg.List() {
			price := "-"
			if !a.IsFree() {
				price = fmt.Sprintf("%d.%02d", a.PriceCents/100, a.PriceCents%100)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", a.ID, a.Name, a.Tier, price, a.Active)
		}
		return w.Flush()
	},
}
