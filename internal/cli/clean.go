package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/meetai/pkg/markdown"
)

func NewCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [text...]",
		Short: "Strip markdown so text reads naturally when spoken",
		Long:  "Strip markdown formatting from the arguments, or from stdin when no arguments are given, and print the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) > 0 {
				text = strings.Join(args, " ")
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), markdown.Clean(text))
			return err
		},
	}
}
