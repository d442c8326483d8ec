package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/roundslab/rounds/engine/attachment"
	"github.com/roundslab/rounds/engine/orchestrator"
)

func RunCmd() *cobra.Command {
	var sessionID string
	var showTranscript bool
	var attachPaths []string
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run a single turn and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng, err := buildEngine(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer eng.Close(context.WithoutCancel(ctx))

			attachments, err := attachment.FromFiles(ctx, attachPaths)
			if err != nil {
				return err
			}
			out, err := eng.orch.Run(ctx, orchestrator.Input{
				SessionID:   sessionID,
				Query:       strings.Join(args, " "),
				Attachments: attachments,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Response)
			if showTranscript {
				raw, err := json.Marshal(out.Transcript)
				if err != nil {
					return fmt.Errorf("failed to encode transcript: %w", err)
				}
				cmd.OutOrStdout().Write(pretty.Pretty(raw))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (serializes turns sharing it)")
	cmd.Flags().StringSliceVar(&attachPaths, "attach", nil, "attach these files to the turn")
	cmd.Flags().BoolVar(&showTranscript, "transcript", false, "print the full turn transcript as JSON")
	return cmd
}
