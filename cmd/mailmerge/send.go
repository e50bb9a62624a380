package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"repaircafe/backend/internal/domain"
)

var (
	sendDraft  string
	sendTags   []string
	sendDryRun bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a draft to the selected members",
	Long: `Render the draft for every member matching the draft's selection
(plus any --tag given here) and send one mail per recipient.

With --dry-run the recipients are listed and nothing is sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		draft, err := loadDraft(sendDraft)
		if err != nil {
			return err
		}
		req, err := draft.request(sendTags)
		if err != nil {
			return err
		}

		env, err := openEnvironment(ctx, !sendDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		if sendDryRun {
			batch, err := env.mailing.Prepare(ctx, req)
			if err != nil {
				return err
			}
			messages := batch.Messages
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL")
			for _, m := range messages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.RecipientID, m.RecipientName, m.RecipientEmail)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d Empfänger, %d Anhänge, nichts versendet (--dry-run).\n", len(messages), len(batch.Attachments))
			return nil
		}

		env.mailing.OnProgress(func(_ string, index, total int, outcome domain.DeliveryOutcome) {
			status := "OK"
			if !outcome.Succeeded() {
				status = "FEHLER: " + outcome.Error
			}
			fmt.Printf("[%d/%d] %s %s\n", index+1, total, outcome.To, status)
		})

		result, err := env.mailing.Send(ctx, req)
		if err != nil {
			return err
		}

		fmt.Println(result.Message())
		if failed := result.Report.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d recipients failed", len(failed))
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendDraft, "draft", "d", "", "draft file (YAML)")
	sendCmd.Flags().StringArrayVarP(&sendTags, "tag", "t", nil, "only members with this tag (repeatable)")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "list recipients without sending")
	_ = sendCmd.MarkFlagRequired("draft")
}
