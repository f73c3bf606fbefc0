package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/planflow/internal/capability"
	"github.com/ramiqadoumi/planflow/internal/domain"
	"github.com/ramiqadoumi/planflow/internal/orchestrator"
	"github.com/ramiqadoumi/planflow/internal/planner"
	"github.com/ramiqadoumi/planflow/internal/store/memory"
	"github.com/ramiqadoumi/planflow/services/runner"
	"github.com/ramiqadoumi/planflow/services/runner/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a plan locally with in-memory state",
	Long: `Run a project plan in this process and print its progress.

The plan comes from --plan (a YAML or JSON plan document) or is generated
from --requirement with the built-in four-stage template. Agents come from
the config file, or one simulated agent per built-in role.

Exits non-zero when the project does not complete.`,
	RunE: runLocal,
}

func init() {
	runCmd.Flags().String("plan", "", "plan document (YAML or JSON)")
	runCmd.Flags().String("requirement", "", "requirement to decompose with the template planner")
	runCmd.Flags().Int("max-retries", 3, "retry budget per task")
	runCmd.Flags().Int("max-parallel", 0, "tasks dispatched at once (0 = unbounded)")
	runCmd.Flags().Duration("task-timeout", 0, "per-task execution timeout (0 = none)")
}

func runLocal(cmd *cobra.Command, _ []string) error {
	planFile, _ := cmd.Flags().GetString("plan")
	requirement, _ := cmd.Flags().GetString("requirement")
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")
	timeout, _ := cmd.Flags().GetDuration("task-timeout")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := buildLogger("warn", "text", "runner")

	var plan domain.Plan
	switch {
	case planFile != "":
		data, err := os.ReadFile(planFile)
		if err != nil {
			return fmt.Errorf("read plan: %w", err)
		}
		plan, err = planner.ParseDocument(data, uuid.New().String(), time.Now().UTC())
		if err != nil {
			return err
		}
	case requirement != "":
		plan, err = planner.NewTemplatePlanner().Decompose(cmd.Context(), requirement)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of --plan or --requirement is required")
	}

	agents := cfg.Agents
	if len(agents) == 0 {
		agents = capability.DefaultAgents()
	}
	registry, err := (&capability.Factory{Email: cfg.SMTP, Logger: logger}).Registry(agents)
	if err != nil {
		return fmt.Errorf("agents: %w", err)
	}

	out := cmd.OutOrStdout()
	orch := orchestrator.New(registry, memory.New(),
		orchestrator.WithLogger(logger),
		orchestrator.WithMaxRetries(maxRetries),
		orchestrator.WithMaxParallel(maxParallel),
		orchestrator.WithTaskTimeout(timeout),
		orchestrator.WithEventPublisher(runner.NewPrinter(out)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := orch.Run(ctx, plan)
	if st != nil {
		runner.PrintSummary(out, st.Summary())
	}
	if err != nil {
		return err
	}
	if st.OverallStatus() != domain.ProjectStatusCompleted {
		return fmt.Errorf("project ended %s", st.OverallStatus())
	}
	return nil
}
