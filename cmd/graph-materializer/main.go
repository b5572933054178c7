package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	"github.com/knaw-huc/pipeline-airflow/internal/linkeddata"
	"github.com/knaw-huc/pipeline-airflow/internal/partition"
	"github.com/knaw-huc/pipeline-airflow/internal/populator"
	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	"github.com/knaw-huc/pipeline-airflow/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var (
		configFile string
		envFile    string
		logLevel   string
		source     string
		outputDir  string
	)

	// setup loads the environment and configuration shared by every command
	setup := func() (*config.Config, *logrus.Logger, error) {
		logger := utils.SetupLogging(logLevel)
		utils.LoadEnvironmentVariables(envFile, logger)

		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, logger, err
		}
		if source != "" {
			cfg.Source = strings.ToLower(source)
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if logLevel == "" {
			if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				logger.SetLevel(level)
			}
		}
		return cfg, logger, nil
	}

	rootCmd := &cobra.Command{
		Use:   "graph-materializer",
		Short: "Materialize a relational API into a linked-data graph",
		Long: `Graph Materializer

Explores the foreign key graph of a paginated relational API around a root
table, turns the reachable records into a JSON-LD and Turtle graph, and cuts
the result into per-entity fragments.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&source, "source", "s", "", "Row source (api, mysql, synthetic)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for JSON-LD and Turtle output")

	rootCmd.AddCommand(
		newExploreCommand(setup),
		newMaterializeCommand(setup),
		newSplitCommand(setup),
		newMergeCommand(setup),
		newConvertCommand(setup),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type setupFunc func() (*config.Config, *logrus.Logger, error)

func newExploreCommand(setup setupFunc) *cobra.Command {
	var (
		root     string
		distance int
		pathTo   string
	)

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Print the tables reachable from a root table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			src, closeSource, err := populator.OpenSource(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSource()

			m := populator.NewMaterializer(src, cfg, logger)
			relations, explorer, err := m.Explore(cmd.Context(), root, distance)
			if err != nil {
				return err
			}
			utils.PrintRelationAnalysis(os.Stdout, root, relations, explorer.Distances(), m.Settings)

			if pathTo != "" {
				path, err := explorer.ShortestPath(cmd.Context(), root, pathTo)
				if err != nil {
					return err
				}
				fmt.Printf("\nShortest path: %s\n", strings.Join(path, " -> "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", "Root table")
	cmd.Flags().IntVarP(&distance, "distance", "d", 3, "Maximum number of hops from the root table")
	cmd.Flags().StringVar(&pathTo, "path-to", "", "Also print the shortest path from the root to this table")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func newMaterializeCommand(setup setupFunc) *cobra.Command {
	var (
		root     string
		distance int
		split    bool
	)

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Build the graph around a root table and write JSON-LD and Turtle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			src, closeSource, err := populator.OpenSource(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSource()

			result, err := populator.NewMaterializer(src, cfg, logger).Run(cmd.Context(), root, distance)
			if err != nil {
				return err
			}
			utils.PrintSummary(os.Stdout, result)

			if !split {
				return nil
			}
			g, err := rdf.Parse(result.Turtle)
			if err != nil {
				return err
			}
			store := partition.NewFragmentStore(fragmentDir(cfg), cfg.Split.Prefix, logger)
			fragments, err := partition.NewSplitter(cfg.Split.TypeIRI, store, logger).Partition(g)
			if err != nil {
				return err
			}
			if _, err := store.WriteIndex(); err != nil {
				return err
			}
			utils.PrintFragments(os.Stdout, fragments)
			return nil
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", "Root table")
	cmd.Flags().IntVarP(&distance, "distance", "d", 3, "Maximum number of hops from the root table")
	cmd.Flags().BoolVar(&split, "split", false, "Partition the result into per-entity fragments")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func newSplitCommand(setup setupFunc) *cobra.Command {
	var (
		dir       string
		prefix    string
		typeIRI   string
		fragments bool
	)

	cmd := &cobra.Command{
		Use:   "split [turtle files...]",
		Short: "Partition Turtle files into one fragment per entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Split.Dir = dir
			}
			if prefix != "" {
				cfg.Split.Prefix = prefix
			}
			if typeIRI != "" {
				cfg.Split.TypeIRI = typeIRI
			}

			store := partition.NewFragmentStore(fragmentDir(cfg), cfg.Split.Prefix, logger)
			splitter := partition.NewSplitter(cfg.Split.TypeIRI, store, logger)

			var written map[string]string
			if fragments {
				texts := make([]string, 0, len(args))
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					texts = append(texts, string(data))
				}
				written, err = splitter.PartitionFragments(texts)
				if err != nil {
					logger.Errorf("Some fragments could not be keyed: %v", err)
				}
			} else {
				g, mergeErr := partition.MergeFiles(args)
				if mergeErr != nil {
					return mergeErr
				}
				written, err = splitter.Partition(g)
			}

			if _, indexErr := store.WriteIndex(); indexErr != nil {
				return indexErr
			}
			utils.PrintFragments(os.Stdout, written)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Fragment directory (default from config)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "File name prefix for fragments")
	cmd.Flags().StringVar(&typeIRI, "type", "", "Type IRI selecting the entities to split on")
	cmd.Flags().BoolVar(&fragments, "fragments", false, "Treat every input file as one fragment keyed by its typed entity")
	return cmd
}

func newMergeCommand(setup setupFunc) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge [turtle files...]",
		Short: "Merge Turtle files into one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup()
			if err != nil {
				return err
			}

			g, err := partition.MergeFiles(args)
			if err != nil {
				return err
			}
			turtle, err := rdf.ToTurtle(g)
			if err != nil {
				return err
			}
			if err := rdf.Validate(turtle); err != nil {
				return err
			}
			if err := rdf.WriteFile(output, []byte(turtle)); err != nil {
				return err
			}
			logger.Infof("Merged %d files (%d triples) into %s", len(args), g.Len(), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "merged.ttl", "Merged Turtle file")
	return cmd
}

func newConvertCommand(setup setupFunc) *cobra.Command {
	var (
		input       string
		output      string
		contextFile string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a Turtle file into compacted JSON-LD",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			g, err := rdf.ReadFile(input)
			if err != nil {
				return err
			}

			ctx := linkeddata.NewContext(cfg.Context.BaseURI)
			if contextFile != "" {
				file, err := os.Open(contextFile)
				if err != nil {
					return err
				}
				doc, err := linkeddata.ReadJSON(file)
				file.Close()
				if err != nil {
					return err
				}
				ctx = doc.Context
			}

			compacted, err := linkeddata.Compact(g, ctx)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(compacted, "", "  ")
			if err != nil {
				return err
			}
			if err := rdf.WriteFile(output, data); err != nil {
				return err
			}
			logger.Infof("Converted %d triples from %s into %s", g.Len(), input, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Turtle file to convert")
	cmd.Flags().StringVar(&output, "output", "output.jsonld", "JSON-LD file to write")
	cmd.Flags().StringVar(&contextFile, "context", "", "JSON-LD document whose context is used for compaction")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// fragmentDir places a relative fragment directory below the output directory
func fragmentDir(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Split.Dir) {
		return cfg.Split.Dir
	}
	return filepath.Join(cfg.OutputDir, cfg.Split.Dir)
}
