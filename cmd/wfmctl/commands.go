package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wfm/internal/domain/payroll"
	"wfm/internal/domain/wage"
	"wfm/internal/transport/http/shared"
)

const cliActor = "wfmctl"

type exporter interface {
	Export(ctx context.Context, req payroll.ExportRequest) (payroll.ExportRun, error)
	Retry(ctx context.Context, runID, actor, requestID string) (payroll.ExportRun, error)
	Systems() []payroll.SystemInfo
}

type progressions interface {
	ApplyProgressions(ctx context.Context, employeeIDs []string) (wage.ProgressionBatch, error)
}

type jobRunner interface {
	Accrue(ctx context.Context) (any, error)
	Reconcile(ctx context.Context) (any, error)
}

type services struct {
	Payroll exporter
	Wages   progressions
	Jobs    jobRunner
}

// connectFunc opens the services for one command; the returned func releases them.
type connectFunc func(ctx context.Context) (services, func(), error)

func newRootCmd(connect connectFunc, loc *time.Location, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wfmctl",
		Short:         "Payroll export operator CLI",
		Long:          "wfmctl runs payroll exports and wage maintenance jobs against the wfm database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	with := func(run func(cmd *cobra.Command, args []string, svc services) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			svc, release, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return run(cmd, args, svc)
		}
	}

	// export
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export payroll lines for a period to a target system",
		RunE: with(func(cmd *cobra.Command, args []string, svc services) error {
			system, _ := cmd.Flags().GetString("system")
			format, _ := cmd.Flags().GetString("format")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			employees, _ := cmd.Flags().GetStringSlice("employee")

			start, err := parseDay("from", from, loc)
			if err != nil {
				return err
			}
			end, err := parseDay("to", to, loc)
			if err != nil {
				return err
			}
			run, err := svc.Payroll.Export(cmd.Context(), payroll.ExportRequest{
				System:      system,
				Format:      format,
				Period:      payroll.Period{Start: start, End: end},
				EmployeeIDs: employees,
				Actor:       cliActor,
			})
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			return printRun(cmd, run)
		}),
	}
	exportCmd.Flags().String("system", "", "target payroll system id")
	exportCmd.Flags().String("format", "", "output format supported by the system")
	exportCmd.Flags().String("from", "", "first day of the period (YYYY-MM-DD)")
	exportCmd.Flags().String("to", "", "last day of the period (YYYY-MM-DD)")
	exportCmd.Flags().StringSlice("employee", nil, "restrict to these employee ids")
	_ = exportCmd.MarkFlagRequired("system")
	_ = exportCmd.MarkFlagRequired("format")
	_ = exportCmd.MarkFlagRequired("from")
	_ = exportCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(exportCmd)

	// retry
	rootCmd.AddCommand(&cobra.Command{
		Use:   "retry <runID>",
		Short: "Re-execute a failed export run as a new run",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, svc services) error {
			run, err := svc.Payroll.Retry(cmd.Context(), args[0], cliActor, "")
			if err != nil {
				return fmt.Errorf("retry: %w", err)
			}
			return printRun(cmd, run)
		}),
	})

	// systems
	rootCmd.AddCommand(&cobra.Command{
		Use:   "systems",
		Short: "List registered payroll systems and their formats",
		RunE: with(func(cmd *cobra.Command, args []string, svc services) error {
			for _, info := range svc.Payroll.Systems() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.System, strings.Join(info.Formats, ","))
			}
			return nil
		}),
	})

	// reconcile
	rootCmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Report employees whose accumulated hours imply a higher ladder level",
		RunE: with(func(cmd *cobra.Command, args []string, svc services) error {
			result, err := svc.Jobs.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}),
	})

	// apply-progressions
	rootCmd.AddCommand(&cobra.Command{
		Use:   "apply-progressions [employeeID...]",
		Short: "Apply pending level progressions (all pending when no ids are given)",
		RunE: with(func(cmd *cobra.Command, args []string, svc services) error {
			batch, err := svc.Wages.ApplyProgressions(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printJSON(cmd, batch)
		}),
	})

	// accrue
	rootCmd.AddCommand(&cobra.Command{
		Use:   "accrue",
		Short: "Add approved attendance hours to accumulated hours",
		RunE: with(func(cmd *cobra.Command, args []string, svc services) error {
			result, err := svc.Jobs.Accrue(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}),
	})

	return rootCmd
}

func parseDay(flag, value string, loc *time.Location) (time.Time, error) {
	day, err := shared.ParseDay(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return day, nil
}

// printRun writes the run as JSON. A failed run is still a result, so the
// command reports it without returning an error.
func printRun(cmd *cobra.Command, run payroll.ExportRun) error {
	return printJSON(cmd, run)
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
