package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repaircafe/backend/internal/mailmerge"
)

var (
	renderDraft  string
	renderMember string
	renderHTML   bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Show the personalized mail for one member",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		draft, err := loadDraft(renderDraft)
		if err != nil {
			return err
		}

		env, err := openEnvironment(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		member, err := env.members.Get(ctx, renderMember)
		if err != nil {
			return err
		}

		msg := mailmerge.Personalize(&draft.Draft, member)
		fmt.Printf("To:      %s <%s>\n", msg.RecipientName, msg.RecipientEmail)
		fmt.Printf("Subject: %s\n\n", draft.Subject)
		if renderHTML {
			fmt.Println(msg.HTML)
		} else {
			fmt.Println(msg.Text)
		}
		if !member.Sendable() {
			fmt.Printf("\nHinweis: %s hat keine E-Mail-Adresse und wird beim Versand übersprungen.\n", member.FullName())
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderDraft, "draft", "d", "", "draft file (YAML)")
	renderCmd.Flags().StringVarP(&renderMember, "member", "m", "", "member ID")
	renderCmd.Flags().BoolVar(&renderHTML, "html", false, "print the HTML part instead of plain text")
	_ = renderCmd.MarkFlagRequired("draft")
	_ = renderCmd.MarkFlagRequired("member")
}

