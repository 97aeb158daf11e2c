package doc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
)

type Metrics interface {
	Document() []metrics.DocumentedMetric
}

// NewSubcommands returns the "doc" subcommands documenting the metrics of a service.
func NewSubcommands(m Metrics) cli.Commands {
	return cli.Commands{
		{
			Name:  "metrics",
			Usage: "Dumps a list of supported metrics to stdout",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "format",
					Value: "markdown",
					Usage: "Output format (json|markdown)",
				},
			},
			Action: func(ctx *cli.Context) error {
				supportedMetrics := m.Document()
				format := ctx.String("format")
				switch format {
				case "markdown":
					_, err := fmt.Fprint(ctx.App.Writer, markdown(supportedMetrics))
					return err
				case "json":
					enc := json.NewEncoder(ctx.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(supportedMetrics)
				default:
					return fmt.Errorf("invalid format %q", format)
				}
			},
		},
	}
}

func markdown(supportedMetrics []metrics.DocumentedMetric) string {
	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Metric", "Description", "Labels", "Type"})
	for _, m := range supportedMetrics {
		table.Append([]string{"`" + m.Name + "`", m.Help, strings.Join(m.Labels, ","), m.Type})
	}
	table.Render()
	return buf.String()
}
