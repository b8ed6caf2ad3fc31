// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/hashgraph/solo-stager/internal/doctor"
)

// RunWorkflow executes a workflow and handles error
func RunWorkflow(ctx context.Context, b automa.Builder) {
	wb, err := b.Build()
	if err != nil {
		doctor.CheckErr(ctx, err)
	}

	report := wb.Execute(ctx)
	CheckWorkflowReport(ctx, report)
}

func CheckWorkflowReport(ctx context.Context, report *automa.Report) {
	if report.Error != nil {
		doctor.CheckReportErr(ctx, report)
	}

	// For each step that failed, run the doctor to diagnose the error
	if len(report.StepReports) > 0 {
		for _, stepReport := range report.StepReports {
			if stepReport.Status == automa.StatusFailed {
				doctor.CheckReportErr(ctx, stepReport)
			}
		}
	}

	timestamp := time.Now().Format("20060102_150405")
	reportPath := path.Join(core.LogsDir, fmt.Sprintf("migrate_report_%s.yaml", timestamp))
	saveWorkflowReport(report, reportPath)
}

// saveWorkflowReport writes the workflow execution report as YAML. Failures
// here only cost the report file, never the run.
func saveWorkflowReport(report *automa.Report, reportPath string) {
	b, err := yaml.Marshal(report)
	if err != nil {
		logx.As().Warn().Err(err).Msg("Failed to marshal workflow report")
		return
	}
	if err := os.MkdirAll(path.Dir(reportPath), core.DefaultFilePerm); err != nil {
		logx.As().Warn().Err(err).Msg("Failed to create logs directory")
		return
	}
	if err := os.WriteFile(reportPath, b, 0o644); err != nil {
		logx.As().Warn().Err(err).Msg("Failed to write workflow report")
		return
	}
	logx.As().Info().Str("report_path", reportPath).Msg("Workflow report is saved")
}

// DefaultRunE is a default RunE function that shows help message and provides a placeholder to add common behaviour.
// We always add a run function to commands to ensure cobra marks it as Runnable and allows our commands to invoke
// PersistentPreRunE functions of the root command.
func DefaultRunE(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}
