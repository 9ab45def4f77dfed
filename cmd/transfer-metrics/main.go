package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	transfermetrics "github.com/FrenchMajesty/transfer-metrics"
	"github.com/FrenchMajesty/transfer-metrics/adapters/inference"
	"github.com/FrenchMajesty/transfer-metrics/adapters/pinecone"
	"github.com/FrenchMajesty/transfer-metrics/adapters/voyage"
	"github.com/FrenchMajesty/transfer-metrics/sweep"
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "transfer-metrics",
		Short:         "Score pretrained models for transferability to a target dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), generateCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one metrics experiment from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := transfermetrics.ReadConfig(configPath)
			if err != nil {
				return err
			}
			providers, err := buildProviders(cfg)
			if err != nil {
				return err
			}
			return transfermetrics.RunConfig(cmd.Context(), cfg, providers)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the experiment config yaml")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func generateCmd() *cobra.Command {
	var configPath string
	var jobscript bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Expand a top-level config grid into per-run config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			top, err := sweep.ReadTopLevel(configPath)
			if err != nil {
				return err
			}

			configs, warnings := top.GenerateSubConfigs()
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "WARNING: %s\n", w)
			}

			dir, err := top.SaveSubConfigs(configs)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d configs to %s\n", len(configs), dir)

			if jobscript || top.UseSlurm {
				path, err := top.WriteJobScript(dir, len(configs))
				if err != nil {
					return err
				}
				fmt.Printf("Wrote jobscript to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the top-level sweep config yaml")
	cmd.Flags().BoolVar(&jobscript, "jobscript", false, "also write a Slurm array jobscript")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// buildProviders wires the configured inference backend and optional feature
// cache into the experiment.
func buildProviders(cfg transfermetrics.Config) (transfermetrics.Providers, error) {
	var providers transfermetrics.Providers

	switch cfg.Inference.Extractor {
	case "voyage":
		extractor, err := voyage.NewExtractor(cfg.Inference.APIKey, "")
		if err != nil {
			return providers, err
		}
		providers.Extractor = extractor
	case "", "server":
		if cfg.Inference.ServerURL == "" {
			return providers, fmt.Errorf("inference.server_url is required for the server extractor")
		}
		client := inference.NewClient(cfg.Inference.ServerURL, cfg.ModelName, cfg.Inference.APIKey)
		providers.Extractor = client
		providers.ModelLoader = client
	default:
		return providers, fmt.Errorf("unknown inference extractor %q", cfg.Inference.Extractor)
	}

	if cfg.Inference.FeatureCache {
		store, err := pinecone.NewStore("", cfg.Inference.CacheHost, "features")
		if err != nil {
			return providers, err
		}
		providers.FeatureStore = store
	}

	return providers, nil
}
