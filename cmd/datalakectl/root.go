package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/datalake/internal/clock"
	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/repository"
	"github.com/smallbiznis/datalake/internal/datalake/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	dataFile string
	node     int64
	verbose  bool
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	root := &cobra.Command{
		Use:           "datalakectl",
		Short:         "Operate on a datalake state file without the HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dataFile, "data-file", cfg.DataFile, "path of the XML state file")
	root.PersistentFlags().Int64Var(&opts.node, "node", cfg.SnowflakeNode, "snowflake node used for invoice ids")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(
		newIngestCmd(opts, "ingest-config", "Merge a configuration feed into the state file", feedConfiguration),
		newIngestCmd(opts, "ingest-consumption", "Append a consumption feed to pending usage", feedConsumption),
		newInvoiceCmd(opts),
		newSnapshotCmd(opts),
		newReportCmd(opts),
		newResetCmd(opts),
	)
	return root
}

func openStore(opts *options) (*service.Store, error) {
	log := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		log = l
	}
	node, err := snowflake.NewNode(opts.node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return service.New(service.Params{
		Log:   log,
		Repo:  repository.NewXMLFile(opts.dataFile, log),
		GenID: node,
		Clock: clock.New(),
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
