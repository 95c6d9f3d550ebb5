package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facematch/internal/app"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

var extractCmd = &cobra.Command{
	Use:   "extract <image-ref>",
	Short: "Print the active provider's identifier for a face",
	Long: `Extract a face identifier with the active provider.

image-ref may be a data URL, an http(s) URL, s3://bucket/key or raw base64.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id, err := a.Service.ExtractFaceFeatures(ctx, args[0])
			if err != nil {
				return err
			}
			if mustGetBool(cmd, "json") {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"face_id":  id.Value,
					"provider": string(id.Provider),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id.Provider, id.Value)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <image-ref>",
	Short: "Search stored references for a face",
	Long: `Compare the face in image-ref with every stored reference.

Examples:
  facematchctl search https://cdn.example.com/visitor.jpg
  facematchctl search s3://uploads/visitor.jpg --threshold 0.9 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var threshold *float64
		if cmd.Flags().Changed("threshold") {
			v, err := cmd.Flags().GetFloat64("threshold")
			if err != nil {
				return err
			}
			threshold = &v
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			matches, err := a.Service.SearchByFace(ctx, args[0], threshold)
			if err != nil {
				return err
			}
			if mustGetBool(cmd, "json") {
				if matches == nil {
					matches = []domain.FaceMatch{}
				}
				return writeJSON(cmd.OutOrStdout(), matches)
			}
			return printMatches(cmd, matches)
		})
	},
}

var storeCmd = &cobra.Command{
	Use:   "store <reference-id>",
	Short: "Derive and store the identifier of one reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		referenceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid reference id %q: %w", args[0], err)
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stored, err := a.Service.StoreFaceEmbedding(ctx, referenceID, mustGetString(cmd, "photo"))
			if err != nil {
				return err
			}
			if !stored {
				return fmt.Errorf("no face could be extracted for reference %s", referenceID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored embedding for %s\n", referenceID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(extractCmd, searchCmd, storeCmd)

	extractCmd.Flags().Bool("json", false, "Output as JSON")

	searchCmd.Flags().Float64("threshold", 0, "Minimum similarity (0-1); defaults to the provider setting")
	searchCmd.Flags().Bool("json", false, "Output as JSON")

	storeCmd.Flags().String("photo", "", "Photo reference to use instead of the reference's own photo")
}

func printMatches(cmd *cobra.Command, matches []domain.FaceMatch) error {
	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no matches")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIMILARITY\tREFERENCE\tNAME\tPHOTO")
	for _, m := range matches {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", m.Similarity, m.ReferenceID, m.SubjectName, m.PhotoURL)
	}
	return w.Flush()
}
