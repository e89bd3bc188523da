package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlstore/internal/hash"
	"github.com/JakeFAU/crawlstore/internal/urlkey"
)

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "key <url>...",
		Short:       "Prints the URL-table row key for each URL",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, u := range args {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u, urlkey.EncodeString(u)); err != nil {
					return fmt.Errorf("write key: %w", err)
				}
			}
			return nil
		},
	}
}

func newDigestCmd(state *cliState) *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:         "digest <file|->...",
		Short:       "Prints the content-table row key for each file",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if algorithm == "" {
				algorithm = state.cfg.Hash.Algorithm
			}
			hasher, err := hash.New(algorithm)
			if err != nil {
				return err
			}
			for _, name := range args {
				data, err := readInput(cmd, name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", hasher.Digest(data), name); err != nil {
					return fmt.Errorf("write digest: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "digest algorithm (defaults to hash.algorithm)")
	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
