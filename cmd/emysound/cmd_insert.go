package main

import (
	"fmt"

	"emysound/pkg/emysound"
	"emysound/pkg/identity"

	"github.com/spf13/cobra"
)

func newInsertCmd(a *app) *cobra.Command {
	var (
		file string
		in   identity.Input
	)

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Register an audio file with the service",
		Long: `Upload an audio file so later queries can match it.

Artist and title default to the file's tags, then to the file name and
"Unknown Artist". The assigned track id is printed on success.

Examples:
  emysound insert --file song.mp3
  emysound insert --file take2.wav --artist "Miles Davis" --title "So What" --extra "take 2"
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := a.load(); err != nil {
				return err
			}

			completed, err := a.extractor.Complete(file, in)
			if err != nil {
				// Insert reports an unreadable file with its own error.
				a.logger.WithError(err).WithField("file", file).Warn("Could not read local metadata")
				completed = in
			}

			id, err := a.client.Insert(cmd.Context(), emysound.FromFile(file), completed)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, id.Value)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Audio file to insert")
	cmd.Flags().StringVar(&in.Artist, "artist", "", "Track artist (default from tags)")
	cmd.Flags().StringVar(&in.Title, "title", "", "Track title (default from tags)")
	cmd.Flags().StringVar(&in.Extra, "extra", "", "Extra metadata folded into the derived track id")
	cmd.MarkFlagRequired("file")
	return cmd
}
