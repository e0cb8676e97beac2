package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/producer"
	natsqueue "github.com/comets-analytics/comets-batch/internal/queue/nats"
)

var submitCmd = &cobra.Command{
	Use:   "submit <workbook>",
	Short: "Submit a workbook for batch processing",
	Long:  "Stage a workbook in the blob store and enqueue a batch model job for it.",
	Example: `  cometsctl submit study.xlsx --email analyst@example.org
  cometsctl submit study.xlsx --email analyst@example.org --cohort NHANES`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		cohort, _ := cmd.Flags().GetString("cohort")

		if email == "" {
			return fmt.Errorf("--email is required: results are delivered by email")
		}

		ctx := cmd.Context()

		queueClient, err := natsqueue.NewClient(ctx, natsqueue.Config{
			URL:               cfg.Queue.URL,
			Name:              "cometsctl",
			Stream:            cfg.Queue.Stream,
			Subject:           cfg.Queue.Subject,
			Consumer:          cfg.Queue.Consumer,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			MaxReconnects:     natsqueue.DefaultConfig().MaxReconnects,
			ReconnectWait:     natsqueue.DefaultConfig().ReconnectWait,
			Timeout:           natsqueue.DefaultConfig().Timeout,
		})
		if err != nil {
			return fmt.Errorf("connect to queue: %w", err)
		}
		defer queueClient.Close()

		store, err := blobstore.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("create blob store: %w", err)
		}

		prod := producer.New(store, queueClient, cfg.Storage.Bucket, cfg.Storage.InputKeyPrefix)
		messageID, err := prod.Enqueue(ctx, args[0], producer.Params{
			Cohort:  cohort,
			Email:   email,
			URLRoot: cfg.Server.URLRoot,
		})
		if err != nil {
			return fmt.Errorf("submit batch job: %w", err)
		}

		fmt.Printf("Job queued: %s\n", messageID)
		fmt.Printf("Results will be emailed to %s\n", email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringP("email", "e", "", "Email address for result delivery")
	submitCmd.Flags().StringP("cohort", "c", "", "Cohort name passed to the model engine")
}
