package main

import (
	"errors"
	"time"

	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/pkg/textutil"
	"github.com/spf13/cobra"
)

const (
	feedConfiguration = "configuration"
	feedConsumption   = "consumption"
)

var errFailedResult = errors.New("operation finished with status error")

func newIngestCmd(opts *options, use, short, feed string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FILE",
		Short: short,
		Long:  short + ". Use - to read the document from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			var res *domain.Result
			if feed == feedConfiguration {
				res, err = store.IngestConfiguration(cmd.Context(), in)
			} else {
				res, err = store.IngestConsumption(cmd.Context(), in)
			}
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func newInvoiceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "invoice TAX_ID",
		Short: "Bill the pending consumption of one client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			res, err := store.GenerateInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the stored entity graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), store.Snapshot())
		},
	}
}

func newReportCmd(opts *options) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate invoiced revenue by category and resource",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := reportFilter(from, to)
			if err != nil {
				return err
			}
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			report, err := store.SalesReport(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first issue date included (dd/mm/yyyy)")
	cmd.Flags().StringVar(&to, "to", "", "last issue date included (dd/mm/yyyy)")
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase every record and rewrite an empty state file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			res, err := store.Reset(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Status == domain.StatusError {
				return errFailedResult
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func reportFilter(from, to string) (domain.ReportFilter, error) {
	var filter domain.ReportFilter
	var err error
	if filter.From, err = optionalDate(from); err != nil {
		return filter, err
	}
	if filter.To, err = optionalDate(to); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := textutil.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.ErrInvalidDate
	}
	return t, nil
}
