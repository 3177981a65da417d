package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxrun/epicbox"
)

var (
	runStdin    string
	runCPUTime  int
	runRealTime int
	runMemoryMB int
)

var runCmd = &cobra.Command{
	Use:   "run <profile> [command]",
	Short: "Run a command in a fresh sandbox and print its result",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := epicbox.ConfigureFromEnv(); err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		opts := epicbox.CreateOptions{ProfileName: args[0]}
		if len(args) == 2 {
			opts.Command = args[1]
		}
		if lim := limitOverrides(cmd); lim != nil {
			opts.Limits = lim
		}

		result, err := epicbox.Run(context.Background(), opts, []byte(runStdin))
		if err != nil {
			return err
		}

		os.Stdout.Write(result.Stdout)
		os.Stderr.Write(result.Stderr)

		exitCode := -1
		if result.ExitCode != nil {
			exitCode = *result.ExitCode
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exit_code=%d timeout=%t oom_killed=%t duration=%.3fs\n",
			exitCode, result.Timeout, result.OOMKilled, result.DurationS)
		return nil
	},
}

func limitOverrides(cmd *cobra.Command) *epicbox.LimitSpec {
	var lim epicbox.LimitSpec
	var set bool
	if cmd.Flags().Changed("cpu-time") {
		lim.CPUTimeS = &runCPUTime
		set = true
	}
	if cmd.Flags().Changed("realtime") {
		lim.RealTimeS = &runRealTime
		set = true
	}
	if cmd.Flags().Changed("memory") {
		lim.MemoryMB = &runMemoryMB
		set = true
	}
	if !set {
		return nil
	}
	return &lim
}

func init() {
	runCmd.Flags().StringVar(&runStdin, "stdin", "", "data piped to the sandbox's stdin")
	runCmd.Flags().IntVar(&runCPUTime, "cpu-time", 0, "cpu-time limit in seconds")
	runCmd.Flags().IntVar(&runRealTime, "realtime", 0, "wall-clock limit in seconds")
	runCmd.Flags().IntVar(&runMemoryMB, "memory", 0, "memory limit in megabytes")
	RootCmd.AddCommand(runCmd)
}
