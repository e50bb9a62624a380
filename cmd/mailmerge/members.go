package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"repaircafe/backend/internal/domain"
)

var (
	listTags        []string
	listOnlyMembers bool
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Inspect the member directory",
}

var membersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts, optionally filtered by tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		members, err := env.members.List(ctx, domain.MemberFilter{Tags: listTags, OnlyMembers: listOnlyMembers})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tMITGLIED\tTAGS")
		for _, m := range members {
			email := m.Email
			if email == "" {
				email = "-"
			}
			member := "nein"
			if m.IsMember {
				member = "ja"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.FullName(), email, member, strings.Join(m.Tags, ", "))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%d Kontakte\n", len(members))
		return nil
	},
}

func init() {
	membersListCmd.Flags().StringArrayVarP(&listTags, "tag", "t", nil, "only contacts with this tag (repeatable)")
	membersListCmd.Flags().BoolVar(&listOnlyMembers, "only-members", false, "only association members")
	membersCmd.AddCommand(membersListCmd)
}
