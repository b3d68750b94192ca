package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	queueService "github.com/jwalitptl/hospital-api/internal/service/queue"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Consultation queue maintenance",
	}

	recalcCmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute estimated start times for a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, _ := cmd.Flags().GetString("department")
			return withQueueService(func(svc *queueService.Service) error {
				id, err := resolveDepartment(cmd.Context(), svc, dept)
				if err != nil {
					return err
				}
				estimates, err := svc.Recalculate(cmd.Context(), id)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "POSITION\tENTRY\tESTIMATED START")
				for _, e := range estimates {
					fmt.Fprintf(w, "%d\t%s\t%s\n", e.Position, e.EntryID, e.EstimatedStartTime.Format("15:04"))
				}
				return w.Flush()
			})
		},
	}
	recalcCmd.Flags().StringP("department", "d", "", "department id or code")
	_ = recalcCmd.MarkFlagRequired("department")
	cmd.AddCommand(recalcCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print a department's active queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, _ := cmd.Flags().GetString("department")
			return withQueueService(func(svc *queueService.Service) error {
				id, err := resolveDepartment(cmd.Context(), svc, dept)
				if err != nil {
					return err
				}
				q, err := svc.DepartmentQueue(cmd.Context(), id)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOKEN\tPRIORITY\tSTATUS\tESTIMATED START")
				for _, e := range append(q.InProgress, q.Waiting...) {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.TokenNumber, e.Priority, e.Status, estimateLabel(e))
				}
				return w.Flush()
			})
		},
	}
	showCmd.Flags().StringP("department", "d", "", "department id or code")
	_ = showCmd.MarkFlagRequired("department")
	cmd.AddCommand(showCmd)

	return cmd
}

func withQueueService(fn func(*queueService.Service) error) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	location, err := cfg.Queue.Location()
	if err != nil {
		return err
	}
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(newQueueService(db, cfg.Queue.AverageConsultationMinutes, cfg.Queue.HistoryWindow, location, appLogger))
}

func newQueueService(db *sqlx.DB, fallback float64, window int, location *time.Location, appLogger *logger.Logger) *queueService.Service {
	base := postgres.NewBaseRepository(db)
	queues := postgres.NewQueueRepository(base)
	return queueService.NewService(
		queues,
		postgres.NewTriageRepository(base),
		postgres.NewDepartmentRepository(base),
		queueService.NewHistoricalAverage(queues, window, fallback, 0),
		nil,
		metrics.NewMetrics("hospital", "hmsctl"),
		clock.System(),
		appLogger,
		queueService.Config{Location: location},
	)
}

// resolveDepartment accepts a department id or a case-insensitive code.
func resolveDepartment(ctx context.Context, svc *queueService.Service, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	departments, err := svc.ListDepartments(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return matchDepartment(departments, ref)
}

func matchDepartment(departments []*model.Department, code string) (uuid.UUID, error) {
	for _, d := range departments {
		if strings.EqualFold(d.Code, code) {
			return d.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("unknown department %q", code)
}

func estimateLabel(e *model.QueueEntry) string {
	if e.EstimatedStartTime == nil {
		return "-"
	}
	return e.EstimatedStartTime.Format("15:04")
}
