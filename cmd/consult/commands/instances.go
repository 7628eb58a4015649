package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// instancesCmd represents the instances command
var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "활성 전략 인스턴스 목록",
	Long: `섹터 필터에 해당하는 활성 인스턴스를 디스패치 순서(우선순위 내림차순, id 오름차순)로 출력합니다.

Example:
  go run ./cmd/consult instances
  go run ./cmd/consult instances --sector ENERGY`,
	RunE: listInstances,
}

var instancesSector string

func init() {
	rootCmd.AddCommand(instancesCmd)

	instancesCmd.Flags().StringVar(&instancesSector, "sector", "", "sector filter (default CONSULT_DEFAULT_SECTOR)")
}

func listInstances(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sector := a.cfg.Consult.DefaultSector
	if instancesSector != "" {
		sector = instancesSector
	}

	ctx, stop := signalContext()
	defer stop()

	instances, err := a.instances.ListActiveInstances(ctx, sector)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Active instances (%s): %d\n\n", strings.ToUpper(sector), len(instances))
	fmt.Fprintf(out, "%-32s %-24s %8s  %s\n", "ID", "TEMPLATE", "PRIORITY", "SECTORS")
	for _, inst := range instances {
		sectors := strings.Join(inst.Sectors, ",")
		if sectors == "" {
			sectors = "-"
		}
		fmt.Fprintf(out, "%-32s %-24s %8d  %s\n", inst.ID, inst.Template, inst.Priority, sectors)
	}

	return nil
}
