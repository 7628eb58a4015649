package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/internal/scheduler/jobs"
	"github.com/wonny/aegis/consult/internal/template"
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render [instance_id]",
	Short: "인스턴스 페이로드 미리보기",
	Long: `인스턴스 하나의 템플릿을 렌더링해 출력합니다.
스냅샷 저장이나 평가기 호출은 하지 않습니다.

Example:
  go run ./cmd/consult render iron_condor_spy
  go run ./cmd/consult render iron_condor_spy --market market.json`,
	Args: cobra.ExactArgs(1),
	RunE: renderInstance,
}

var renderMarketFile string

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVar(&renderMarketFile, "market", "", "market context JSON file")
}

func renderInstance(cmd *cobra.Command, args []string) error {
	instanceID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	instances, err := a.instances.ListActiveInstances(ctx, contracts.SectorAll)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}

	var inst *contracts.StrategyInstance
	for i := range instances {
		if instances[i].ID == instanceID {
			inst = &instances[i]
			break
		}
	}
	if inst == nil {
		return fmt.Errorf("instance %q not found or disabled", instanceID)
	}

	market := map[string]interface{}{}
	if renderMarketFile != "" {
		market, err = jobs.NewFileMarket(renderMarketFile).MarketContext(ctx)
		if err != nil {
			return fmt.Errorf("load market context: %w", err)
		}
	}

	tpl, err := a.templates.GetTemplate(ctx, inst.Template)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	payload, err := template.NewRenderer().Render(tpl, inst.Parameters, template.Vars{
		InstanceID: inst.ID,
		Market:     market,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), payload)
	return nil
}
