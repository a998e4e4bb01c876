package main

import (
	"time"

	"emysound/pkg/emysound"
	"emysound/pkg/models"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		file          string
		minConfidence float64
		noRegister    bool
		verbose       bool
		alignedOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up tracks matching an audio file",
		Long: `Upload an audio file and print the tracks the service matched, best
coverage first, as "<query coverage> <track id>".

Examples:
  emysound query --file clip.wav
  emysound query --file clip.wav --min-confidence 0.5 --verbose
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.load(); err != nil {
				return err
			}

			opts := emysound.QueryOptions{MinConfidence: a.cfg.Query.MinConfidence}
			if cmd.Flags().Changed("min-confidence") {
				opts.MinConfidence = minConfidence
			}
			register := a.cfg.Query.RegisterMatches && !noRegister
			opts.RegisterMatches = &register

			results, err := a.client.QueryWithOptions(cmd.Context(), emysound.FromFile(file), opts)
			if err != nil {
				return err
			}

			if alignedOnly {
				results = lo.Reject(results, func(r models.QueryResult, _ int) bool {
					return r.IsDegenerate()
				})
			}
			var clip time.Duration
			if verbose {
				if clip, err = a.extractor.Duration(file); err != nil {
					a.logger.WithError(err).WithField("file", file).Debug("Could not measure clip length")
				}
			}
			printResults(a.stdout, results, verbose, clip)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Audio file to look up")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum match confidence in [0,1] (default from config)")
	cmd.Flags().BoolVar(&noRegister, "no-register", false, "Do not let the service record this query as a match")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print track names and gap summaries")
	cmd.Flags().BoolVar(&alignedOnly, "aligned-only", false, "Hide results without a coverage alignment")
	cmd.MarkFlagRequired("file")
	return cmd
}
