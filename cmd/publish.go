package cmd

import (
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/observability"
	"github.com/xkilldash9x/scribe-cli/internal/publisher"
)

type publishOptions struct {
	title    string
	bodyFile string
	workID   string
	identity string
}

// newPublishCmd creates the `publish` command.
func newPublishCmd() *cobra.Command {
	opts := &publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Log in and publish one chapter",
		Long: `Logs in to the writing platform, optionally opens a specific work, enters the
chapter and publishes it. The result is printed as JSON.

The secret is read from SCRIBE_PLATFORM_SECRET only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			body, err := readBody(cmd, opts.bodyFile)
			if err != nil {
				return err
			}

			var target *publisher.TargetRef
			if opts.workID != "" {
				target = &publisher.TargetRef{ID: opts.workID}
			}
			creds := credentialsFrom(cfg, opts.identity)

			result, runErr := newService(cfg).SubmitContent(cmd.Context(), creds, publisher.Content{Title: opts.title, Body: body}, target)
			if result != nil {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode result: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			if runErr != nil {
				observability.GetLogger().Debug("Publish failed.", zap.String("kind", string(publisher.KindOf(runErr))))
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "chapter title")
	cmd.Flags().StringVarP(&opts.bodyFile, "body-file", "f", "", `file holding the chapter body ("-" for stdin)`)
	cmd.Flags().StringVarP(&opts.workID, "work-id", "w", "", "work to add the chapter to (default: platform's current work)")
	cmd.Flags().StringVar(&opts.identity, "identity", "", "account identity (default: SCRIBE_PLATFORM_IDENTITY)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("body-file")
	return cmd
}

func readBody(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open body file: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), nil
}
