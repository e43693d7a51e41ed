package cmd

import (
	"fmt"
	"os"

	"github.com/rohmanhakim/newscrawl/internal/config"
	"github.com/rohmanhakim/newscrawl/internal/operations"
	"github.com/rohmanhakim/newscrawl/internal/sequencerunner"
	"github.com/spf13/cobra"
)

var sequenceContinueOnError bool

// sequenceCmd groups sequence-file subcommands under `newscrawl sequence`.
var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Load and run declarative multi-step crawl sequences",
}

var sequenceRunCmd = &cobra.Command{
	Use:   "run <sequence-file>",
	Short: "Load a sequence file and run it through the OperationsFacade",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required.\n")
			os.Exit(1)
		}
		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		cfg := InitConfig(parsedURLs)
		runSequence(cfg, args[0])
	},
}

func init() {
	sequenceRunCmd.Flags().BoolVar(&sequenceContinueOnError, "continue-on-error", false, "keep running later steps after a step fails")
	sequenceCmd.AddCommand(sequenceRunCmd)
}

// runSequence loads path via SequenceConfigLoader (resolving
// @config/@cli/@playbook tokens) and executes it through a Facade
// bound to the same dependency stack the bare `newscrawl` command
// uses for an ad-hoc crawl.
func runSequence(cfg config.Config, path string) {
	deps, closeDeps, err := buildDependencies(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer closeDeps()

	params := operations.DefaultParams()
	params.UserAgent = cfg.UserAgent()
	params.ConcurrentWorkers = cfg.Concurrency()
	facade := operations.NewFacade(params, deps)

	tokens := []sequencerunner.TokenResolver{
		operations.NewConfigTokenResolver(cfg),
		operations.NewCliTokenResolver(map[string]any{"seedUrl": seedURLs[0]}),
		operations.NewPlaybookTokenResolver(deps.Plan),
	}

	loader := operations.NewSequenceConfigLoader(tokens)
	sequence, lerr := loader.Load(path)
	if lerr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", lerr)
		os.Exit(1)
	}

	result := facade.ExecuteSequence(sequence, sequenceContinueOnError, tokens)
	for _, outcome := range result.Outcomes {
		status := "ok"
		if !outcome.OK {
			status = "failed: " + outcome.Error
		}
		fmt.Printf("step %s (%s): %s\n", outcome.StepID, outcome.Operation, status)
	}
}
