package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/envelope"
)

var resultsCmd = &cobra.Command{
	Use:   "results <message-id>",
	Short: "Print a download URL for a job's results",
	Long:  "Look up the result archive for a finished job and print a presigned download URL.",
	Example: `  cometsctl results 5f0c8a7e-1d2b-4c3d-9e8f-0a1b2c3d4e5f
  cometsctl results 5f0c8a7e-1d2b-4c3d-9e8f-0a1b2c3d4e5f --ttl 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl == 0 {
			ttl = cfg.Storage.DownloadURLTTL
		}

		ctx := cmd.Context()
		messageID := args[0]

		store, err := blobstore.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("create blob store: %w", err)
		}

		objects, err := store.List(ctx, envelope.OutputPrefix(cfg.Storage.OutputKeyPrefix, messageID))
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		if len(objects) == 0 {
			return fmt.Errorf("no results found for job %s", messageID)
		}

		newest := objects[0]
		for _, obj := range objects[1:] {
			if obj.LastModified.After(newest.LastModified) {
				newest = obj
			}
		}

		url, err := store.PresignGet(ctx, newest.Key, ttl)
		if err != nil {
			return fmt.Errorf("presign results: %w", err)
		}

		fmt.Printf("Archive:  %s\n", newest.Key)
		fmt.Printf("Created:  %s\n", newest.LastModified.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("Download: %s\n", url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.Flags().Duration("ttl", 0, "Presigned URL lifetime (default from config)")
}
