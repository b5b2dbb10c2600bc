package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"activitymaps/pkg/builder"
	"activitymaps/pkg/config"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/sampler"
	"activitymaps/pkg/stats"
	"activitymaps/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "CSV file of observations (group, x, y, z, weight)")
	configPath := flag.String("config", "activitymaps.yaml", "YAML configuration file")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	workers := flag.Int("workers", 0, "Number of parallel workers (default: from config)")
	sigma := flag.Float64("sigma", 0, "Gaussian smoothing width in voxels (default: from config)")
	iterative := flag.Bool("iterative", false, "Compute average and variance in a single pass")
	randomPeaks := flag.Int("random-peaks", 0, "Generate a synthetic collection with this many peaks instead of reading -input")
	randomMaps := flag.Int("random-maps", 10, "Number of maps of the synthetic collection")
	verbose := flag.Bool("verbose", false, "Log progress at debug level")
	slicesDir := flag.String("slices-dir", "", "Save the average map as slice images along every axis")
	atlasFile := flag.String("atlas", "", "CSV file of labelled voxels (i, j, k, region)")
	covariance := flag.Bool("covariance", false, "Estimate the region covariance (needs -atlas)")
	shrink := flag.String("shrink", "", "Covariance shrinkage, none or ledoit-wolf (default: from config)")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *writeConfig)
		return
	}

	if *inputFile == "" && *randomPeaks <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags given on the command line override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Processing.Workers = *workers
		case "sigma":
			cfg.Statistics.Sigma = *sigma
		case "iterative":
			cfg.Statistics.Iterative = *iterative
		case "verbose":
			cfg.Output.Verbose = *verbose
		case "shrink":
			cfg.Statistics.Shrink = *shrink
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("================================")
	fmt.Println("ACTIVITY MAPS: SPARSE VOXEL MAP STATISTICS")
	fmt.Println("================================")

	h, err := cfg.Header()
	if err != nil {
		log.Fatalf("Invalid box: %v", err)
	}
	if *atlasFile != "" {
		a, err := readAtlas(*atlasFile, h.Box)
		if err != nil {
			log.Fatalf("Failed to read atlas: %v", err)
		}
		h.Atlas = a
		fmt.Printf("Atlas %s: %d regions\n", *atlasFile, a.NLabels())
	}

	startTime := time.Now()
	var collection *maps.Collection
	if *inputFile != "" {
		fmt.Printf("Building maps from %s with %d workers...\n", *inputFile, cfg.Processing.Workers)
		table, err := readTable(*inputFile)
		if err != nil {
			log.Fatalf("Failed to read observations: %v", err)
		}
		res, err := builder.FromTable(ctx, table, cfg.Columns, h, builder.Options{
			Workers:    cfg.Processing.Workers,
			Logger:     logger,
			Collection: []maps.Option{maps.WithMode(cfg.Mode())},
		})
		if err != nil {
			log.Fatalf("Build failed: %v", err)
		}
		collection = res.Maps
	} else {
		fmt.Printf("Generating %d random peaks over %d maps...\n", *randomPeaks, *randomMaps)
		template, err := maps.Empty(h, maps.WithMode(cfg.Mode()))
		if err != nil {
			log.Fatalf("Failed to create template: %v", err)
		}
		collection, err = sampler.Randomize(template, *randomPeaks, *randomMaps, sampler.Options{Seed: cfg.Sampling.Seed})
		if err != nil {
			log.Fatalf("Sampling failed: %v", err)
		}
	}
	buildTime := time.Since(startTime)

	fmt.Printf("\n%v\n", collection)
	summary := stats.Summarize(collection)
	fmt.Printf("\nPeak counts:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Total weight: %.3f\n", summary.TotalWeight)
	fmt.Printf("Mean per map: %.3f\n", summary.MeanPeaks)
	fmt.Printf("Std per map:  %.3f\n", summary.StdPeaks)
	fmt.Printf("Max value:    %.3f\n", summary.MaxValue)

	if collection.NMaps() == 0 {
		fmt.Println("\nNo maps, skipping statistics.")
		return
	}

	startTime = time.Now()
	avg, variance, err := averageVariance(collection, cfg, logger)
	if err != nil {
		log.Fatalf("Statistics failed: %v", err)
	}
	statsTime := time.Since(startTime)

	avgMax, _ := stats.Max(avg, stats.Voxels)
	fmt.Printf("\nAverage and variance (sigma %.2f, biased %t, iterative %t):\n", cfg.Statistics.Sigma, cfg.Statistics.Biased, cfg.Statistics.Iterative)
	fmt.Printf("=======================================\n")
	fmt.Printf("Average max:  %.6f\n", avgMax)
	if variance != nil {
		varMax, _ := stats.Max(variance, stats.Voxels)
		fmt.Printf("Variance max: %.6f\n", varMax)
	} else {
		fmt.Println("Variance:     needs at least 2 maps when unbiased")
	}

	if *covariance {
		cov, err := regionCovariance(collection, cfg)
		if err != nil {
			log.Fatalf("Covariance failed: %v", err)
		}
		p, _ := cov.Matrix.Dims()
		fmt.Printf("\nRegion covariance (shrink %s, ignore background %t):\n", cfg.Statistics.Shrink, cfg.Statistics.IgnoreBackground)
		fmt.Printf("=======================================\n")
		fmt.Printf("Regions:   %d (%d labelled)\n", p, len(cov.Labels))
		fmt.Printf("Trace:     %.6f\n", mat.Trace(cov.Matrix))
		fmt.Printf("Shrinkage: %.6f\n", cov.Shrinkage)
	}

	if *slicesDir != "" {
		fmt.Println("\nSaving average map slices...")
		if err := saveSlices(avg, *slicesDir); err != nil {
			log.Printf("Warning: Failed to save slices: %v", err)
		}
	}

	fmt.Println("\nPerformance:")
	fmt.Printf("- Build time: %.2f seconds\n", buildTime.Seconds())
	fmt.Printf("- Statistics time: %.2f seconds\n", statsTime.Seconds())
}

// averageVariance runs the configured estimator. Variance is nil when the
// collection has too few maps for it.
func averageVariance(c *maps.Collection, cfg *config.Config, logger *slog.Logger) (*maps.Collection, *maps.Collection, error) {
	st := cfg.Statistics
	skipVariance := !st.Biased && c.NMaps() < 2

	if st.Iterative {
		res, err := stats.IterativeAverageVariance(c, stats.IterativeOptions{
			Sigma:        st.Sigma,
			Biased:       st.Biased,
			SkipVariance: skipVariance,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return res.Average, res.Variance, nil
	}

	smoothed, err := stats.Smooth(c, st.Sigma)
	if err != nil {
		return nil, nil, err
	}
	avg, err := stats.Average(smoothed)
	if err != nil {
		return nil, nil, err
	}
	if skipVariance {
		return avg, nil, nil
	}
	variance, err := stats.Variance(smoothed, st.Biased)
	if err != nil {
		return nil, nil, err
	}
	return avg, variance, nil
}

// saveSlices writes every slice of the single map of c along each axis.
func saveSlices(c *maps.Collection, dir string) error {
	vol, err := c.ToArray(maps.OnlyMap)
	if err != nil {
		return err
	}
	viewer, err := visualization.NewViewer(vol)
	if err != nil {
		return err
	}
	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(dir, axis)
		fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			return err
		}
	}
	return nil
}
