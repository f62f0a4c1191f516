package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/SERDSDDAM/SurpadClone/pkg/dispatch"
	"github.com/SERDSDDAM/SurpadClone/pkg/queue"
	"github.com/SERDSDDAM/SurpadClone/pkg/store"
)

// serveCmd runs the HTTP dispatcher.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload dispatcher HTTP service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		// Schema bootstrap is idempotent; goose fast-paths when nothing
		// is pending.
		if err := st.Migrate(); err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
			return errors.Wrapf(err, "failed creating upload dir %s", cfg.UploadDir)
		}

		pub, err := queue.NewPublisher(cfg.BrokerURL)
		if err != nil {
			return err
		}
		defer pub.Close()
		ins, err := queue.NewInspector(cfg.BrokerURL)
		if err != nil {
			return err
		}
		defer ins.Close()

		srv := dispatch.New(dispatch.Options{
			Store:       st,
			Enqueuer:    pub,
			Inspector:   ins,
			UploadDir:   cfg.UploadDir,
			Addr:        cfg.HTTPAddr,
			Development: cfg.Development(),
			Log:         log,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
