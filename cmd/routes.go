package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/routefs/internal/config"
	"github.com/conneroisu/routefs/internal/routeindex"
)

var routesFormat string

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route mapping for the content root",
	Long: `Scan the content root and print every route the server would expose,
with its kind and backing file. Useful for checking what a content tree
publishes before serving it.

Examples:
  routefs routes                       # Table output
  routefs routes --format yaml         # YAML output
  routefs routes --format json         # JSON output`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringP("root", "r", "./site", "Content root directory")
	routesCmd.Flags().StringVarP(&routesFormat, "format", "f", "table", "Output format (table, yaml, json)")

	_ = viper.BindPFlag("content.root", routesCmd.Flags().Lookup("root"))
}

// routeRow is the serializable form of one route.
type routeRow struct {
	Path string `json:"path" yaml:"path"`
	Kind string `json:"kind" yaml:"kind"`
	File string `json:"file" yaml:"file"`
}

func runRoutes(cmd *cobra.Command, args []string) error {
	switch routesFormat {
	case "table", "yaml", "json":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, yaml, json)", routesFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	rootAbs, err := filepath.Abs(cfg.Content.Root)
	if err != nil {
		return fmt.Errorf("resolving content root: %w", err)
	}

	index := routeindex.New(osfs.New(rootAbs), routeindex.Options{
		Root:         rootAbs,
		TemplateExts: cfg.Extensions.Template,
		DynamicExts:  cfg.Extensions.Dynamic,
		IndexPattern: cfg.Content.IndexPattern,
	}, nil)

	if err := index.BuildFull(); err != nil {
		return err
	}

	rows := collectRoutes(index.Snapshot())

	switch routesFormat {
	case "table":
		printRouteTable(rows)
		return nil
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(rows)
	default:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}
}

func collectRoutes(snap *routeindex.Snapshot) []routeRow {
	rows := make([]routeRow, 0, snap.Len())
	for _, d := range snap.Routes() {
		file := d.RelPath
		if d.Kind == routeindex.KindDirectoryIndex {
			file = d.IndexTarget
		}
		rows = append(rows, routeRow{
			Path: "/" + d.NormalizedPath,
			Kind: d.Kind.String(),
			File: file,
		})
	}
	return rows
}

func printRouteTable(rows []routeRow) {
	kindColors := map[string]*color.Color{
		"static":          color.New(color.FgWhite),
		"template":        color.New(color.FgGreen),
		"dynamic":         color.New(color.FgYellow),
		"directory-index": color.New(color.FgCyan),
		"directory":       color.New(color.FgBlue),
	}

	for _, row := range rows {
		c, ok := kindColors[row.Kind]
		if !ok {
			c = color.New(color.FgWhite)
		}
		fmt.Printf("%-40s %s %s\n", row.Path, c.Sprintf("%-16s", row.Kind), row.File)
	}

	fmt.Printf("\n%d routes\n", len(rows))
}
