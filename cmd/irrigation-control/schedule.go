package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/munbon/irrigation-control/pkg/audit"
)

func newScheduleCommand() *cobra.Command {
	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Weekly schedule operations",
	}
	schedule.AddCommand(newScheduleBuildCommand())
	schedule.AddCommand(newScheduleApproveCommand())
	schedule.AddCommand(newScheduleActivateCommand())
	return schedule
}

func newScheduleBuildCommand() *cobra.Command {
	var isoYear, isoWeek int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Enqueue a weekly plan build for the given ISO week",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := a.jobScheduler.EnqueueWeeklyBuild(ctx, isoYear, isoWeek)
			if err != nil {
				return fmt.Errorf("enqueue weekly build: %w", err)
			}

			fmt.Printf("enqueued weekly build task %s for %04d-W%02d\n", task.ID, isoYear, isoWeek)
			return nil
		},
	}

	cmd.Flags().IntVar(&isoYear, "year", 0, "ISO year (required)")
	cmd.Flags().IntVar(&isoWeek, "week", 0, "ISO week number (required)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("week")

	return cmd
}

// newScheduleApproveCommand moves a draft schedule to approved, persisting
// the new status/version and an audit record of who approved it.
func newScheduleApproveCommand() *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "approve <schedule-id>",
		Short: "Approve a draft schedule for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scheduleID := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.schedules.GetByID(ctx, scheduleID)
			if err != nil {
				return fmt.Errorf("load schedule: %w", err)
			}

			if err := s.Approve(); err != nil {
				return fmt.Errorf("approve schedule: %w", err)
			}

			if err := a.schedules.UpdateStatusAndVersion(ctx, s); err != nil {
				return fmt.Errorf("persist approval: %w", err)
			}

			if err := audit.Log(ctx, audit.NewEntry().
				Service("irrigation-control").
				Method("schedule approve").
				Action(audit.ActionApprove).
				Outcome(audit.OutcomeSuccess).
				User(operator, operator).
				Resource("schedule", s.ID).
				Build()); err != nil {
				return fmt.Errorf("write audit entry: %w", err)
			}

			fmt.Printf("schedule %s approved\n", s.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "identifier of the person approving this schedule (required)")
	_ = cmd.MarkFlagRequired("operator")

	return cmd
}

// newScheduleActivateCommand moves an approved schedule to active. Callers
// are responsible for deactivating any other schedule already active for
// the same week before calling this, per Schedule.Activate's contract.
func newScheduleActivateCommand() *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "activate <schedule-id>",
		Short: "Activate an approved schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scheduleID := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.schedules.GetByID(ctx, scheduleID)
			if err != nil {
				return fmt.Errorf("load schedule: %w", err)
			}

			if err := s.Activate(); err != nil {
				return fmt.Errorf("activate schedule: %w", err)
			}

			if err := a.schedules.UpdateStatusAndVersion(ctx, s); err != nil {
				return fmt.Errorf("persist activation: %w", err)
			}

			if err := audit.Log(ctx, audit.NewEntry().
				Service("irrigation-control").
				Method("schedule activate").
				Action(audit.ActionApprove).
				Outcome(audit.OutcomeSuccess).
				User(operator, operator).
				Resource("schedule", s.ID).
				Build()); err != nil {
				return fmt.Errorf("write audit entry: %w", err)
			}

			fmt.Printf("schedule %s activated\n", s.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "identifier of the person activating this schedule (required)")
	_ = cmd.MarkFlagRequired("operator")

	return cmd
}
