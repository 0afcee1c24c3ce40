package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportStore string
	exportOut   string
	importStore string
	importIn    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export jobs to a JSON document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPausedScheduler(cmd, func(ctx context.Context, a *app) error {
			w := cmd.OutOrStdout()
			if exportOut != "" && exportOut != "-" {
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return a.sched.ExportJobs(ctx, w, exportStore)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import jobs from a JSON document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPausedScheduler(cmd, func(ctx context.Context, a *app) error {
			var r io.Reader = cmd.InOrStdin()
			if importIn != "" && importIn != "-" {
				f, err := os.Open(importIn)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			n, err := a.sched.ImportJobs(ctx, r, importStore)
			if err != nil {
				return err
			}
			a.log.Info("[apsched] 任务导入完成", zap.Int("count", n))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d jobs\n", n)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportStore, "jobstore", "", "only export jobs of this job store")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	importCmd.Flags().StringVar(&importStore, "jobstore", "default", "job store to import into")
	importCmd.Flags().StringVarP(&importIn, "in", "i", "", "input file (default stdin)")
}

// withPausedScheduler 以暂停状态启动调度器执行 fn，结束后立即关闭
func withPausedScheduler(cmd *cobra.Command, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configFile, false)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.sched.Start(ctx, true); err != nil {
		return err
	}
	defer func() { _ = a.sched.Shutdown(context.Background(), false) }()
	return fn(ctx, a)
}
