package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"backend_inventory/models"
	"backend_inventory/services"
)

var (
	reconcileDryRun bool
	reconcileKind   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Проверить и исправить журналы назначений",
	Long: `Проходит по всем устройствам, приводит журнал назначений к согласованному
состоянию и пересчитывает статусы. С --dry-run только выводит нарушения.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	var kind models.DeviceKind
	if reconcileKind != "" {
		parsed, ok := models.ParseKind(reconcileKind)
		if !ok {
			return fmt.Errorf("неизвестный тип устройства: %s", reconcileKind)
		}
		kind = parsed
	}

	ctx := context.Background()
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.wire(); err != nil {
		return err
	}

	report, err := app.engine.ReconcileAll(ctx, kind, reconcileDryRun)
	if err != nil {
		return err
	}

	printReconcileReport(report)
	if report.Failed > 0 {
		return fmt.Errorf("не удалось исправить устройств: %d", report.Failed)
	}
	return nil
}

func printReconcileReport(report *services.ReconcileReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tKIND\tSERIAL\tCHANGED\tVIOLATIONS")
	fmt.Fprintln(w, "--\t----\t------\t-------\t----------")
	for _, d := range report.Devices {
		codes := make([]string, 0, len(d.Violations))
		for _, v := range d.Violations {
			codes = append(codes, v.Code)
		}
		if d.Error != "" {
			codes = append(codes, "error: "+d.Error)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", d.DeviceID, d.Kind, d.Serial, d.Changed, strings.Join(codes, ","))
	}

	fmt.Fprintf(w, "\nПроверено: %d, исправлено: %d, ошибок: %d, dry-run: %t (%s)\n",
		report.Scanned, report.Repaired, report.Failed, report.DryRun, report.Duration)
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Только показать нарушения")
	reconcileCmd.Flags().StringVar(&reconcileKind, "kind", "", "Тип устройств (laptop, monitor, ...)")
	rootCmd.AddCommand(reconcileCmd)
}
