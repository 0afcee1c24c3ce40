package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runPaused          bool
	runShutdownTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and block until SIGINT/SIGTERM",
	RunE:  runScheduler,
}

func init() {
	runCmd.Flags().BoolVar(&runPaused, "paused", false, "start with job processing paused")
	runCmd.Flags().DurationVar(&runShutdownTimeout, "shutdown-timeout", 30*time.Second, "max time to wait for running jobs on shutdown")
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFile, true)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	recorder, err := a.attachStatusRecorder(ctx)
	if err != nil {
		return err
	}
	if err := a.sched.Start(ctx, runPaused); err != nil {
		return err
	}
	a.watchLogLevel()

	a.log.Info("[apsched] 调度器已启动", zap.Bool("paused", runPaused), zap.String("config", configFile))
	<-ctx.Done()
	a.log.Info("[apsched] 收到退出信号，等待运行中的任务结束")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runShutdownTimeout)
	defer cancel()
	if err := a.sched.Shutdown(shutdownCtx, true); err != nil {
		a.log.Error("[apsched] 调度器关闭失败", zap.Error(err))
		return err
	}
	if recorder != nil {
		_ = recorder.Shutdown(shutdownCtx)
	}
	a.log.Info("[apsched] 调度器已关闭",
		zap.Any("metrics", a.sched.Metrics().GetSnapshot()),
		zap.Float64("success_rate", a.sched.Metrics().GetSuccessRate()),
	)
	return nil
}
