package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SERDSDDAM/SurpadClone/pkg/objstore"
	"github.com/SERDSDDAM/SurpadClone/pkg/queue"
	"github.com/SERDSDDAM/SurpadClone/pkg/raster"
	"github.com/SERDSDDAM/SurpadClone/pkg/store"
)

// workerCmd runs the queue consumer that does the actual raster work.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the raster processing worker.",
	Long: `Run the raster processing worker.

The worker consumes the processing queues, converts uploads into COG
and preview artifacts, pushes them to the object store and records the
results. With --with-scheduler it also emits the periodic cleanup and
statistics tasks; run exactly one scheduler per deployment.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		withScheduler, _ := cmd.Flags().GetBool("with-scheduler")
		queues, _ := cmd.Flags().GetStringSlice("queues")

		raster.Register()

		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		objects, err := objstore.New(objstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Secure:    cfg.MinioSecure,
		})
		if err != nil {
			return err
		}
		if err := objects.EnsureBucket(context.Background()); err != nil {
			return err
		}

		pub, err := queue.NewPublisher(cfg.BrokerURL)
		if err != nil {
			return err
		}
		defer pub.Close()

		handlers := &queue.Handlers{
			Store:      st,
			Objects:    objects,
			Pub:        pub,
			UploadDir:  cfg.UploadDir,
			WebhookURL: cfg.WebhookURL,
			Log:        log,
		}

		srv, err := queue.NewServer(cfg.BrokerURL, concurrency, queues, log)
		if err != nil {
			return err
		}

		g := errgroup.Group{}
		g.Go(func() error {
			return srv.Run(queue.NewMux(handlers))
		})
		if withScheduler {
			sched, err := queue.NewScheduler(cfg.BrokerURL)
			if err != nil {
				return err
			}
			g.Go(sched.Run)
		}
		log.Info().Int("concurrency", concurrency).Bool("scheduler", withScheduler).Msg("worker started")
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Int("concurrency", 1, "number of tasks processed in parallel")
	workerCmd.Flags().Bool("with-scheduler", false, "also run the periodic task scheduler")
	workerCmd.Flags().StringSlice("queues", nil, "restrict this worker to the named queues")
}
