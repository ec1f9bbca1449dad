package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"ndcore/internal/imageio"
	"ndcore/pkg/config"
	"ndcore/pkg/ndimage"
	"ndcore/pkg/reconstruction"
	"ndcore/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Image file, or directory of 2D slices forming a volume")
	outputPath := flag.String("output", "output.png", "Output image file (directory for volumes)")
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	peaksPath := flag.String("peaks", "", "Optional file (directory for volumes) for the removed peaks")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	numWorkers := flag.Int("workers", 0, "Goroutines sharing each pass (overrides processing.numWorkers)")
	fullyConnected := flag.Bool("fully-connected", false, "Use the 3^N-1 neighbourhood (overrides processing.fullyConnected)")
	maxIterations := flag.Int("max-iterations", 0, "Iteration sanity bound (overrides processing.maxIterations)")
	fillHoles := flag.Bool("fill-holes", false, "Fill holes instead of removing peaks (overrides processing.fillHoles)")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save result slices along all axes (overrides output.saveSlices)")
	slicesDir := flag.String("slices-dir", "", "Directory to save extracted slices (overrides output.slicesDir)")
	verbose := flag.Bool("verbose", false, "Print one line per pass (overrides output.verbose)")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given explicitly take precedence over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Processing.NumWorkers = *numWorkers
		case "fully-connected":
			cfg.Processing.FullyConnected = *fullyConnected
		case "max-iterations":
			cfg.Processing.MaxIterations = *maxIterations
		case "fill-holes":
			cfg.Processing.FillHoles = *fillHoles
		case "extract-slices":
			cfg.Output.SaveSlices = *extractSlices
		case "slices-dir":
			cfg.Output.SlicesDir = *slicesDir
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("GRAYSCALE PEAK REMOVAL BY GEODESIC RECONSTRUCTION")
	fmt.Println("================================")

	input, err := imageio.Load(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load input: %v", err)
	}
	if err := cfg.ApplyGeometry(input.Geometry()); err != nil {
		log.Fatalf("Failed to apply geometry: %v", err)
	}
	fmt.Printf("Loaded %d-D image %v\n", input.Dimension(), input.FullExtent())
	fmt.Printf("Spacing: %v mm\n", input.Geometry().Spacing())

	opts := reconstruction.Options{
		FullyConnected: cfg.Processing.FullyConnected,
		MaxIterations:  cfg.Processing.MaxIterations,
		NumWorkers:     cfg.Processing.NumWorkers,
		Verbose:        cfg.Output.Verbose,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	run, name := reconstruction.RemovePeaks[uint16], "peak removal"
	if cfg.Processing.FillHoles {
		run, name = reconstruction.FillHoles[uint16], "hole filling"
	}

	fmt.Printf("Starting %s with %d workers...\n", name, cfg.Processing.NumWorkers)
	startTime := time.Now()
	output, iterations, err := run(ctx, input, opts)
	if err != nil {
		log.Fatalf("Reconstruction failed: %v", err)
	}
	processingTime := time.Since(startTime)

	if err := imageio.Save(output, *outputPath, cfg.Output.Format); err != nil {
		log.Fatalf("Failed to save output: %v", err)
	}

	metrics, err := reconstruction.Summarize(input, output)
	if err != nil {
		log.Fatalf("Failed to compute metrics: %v", err)
	}

	fmt.Printf("\n%s completed in %.2f seconds after %d iterations\n", name, processingTime.Seconds(), iterations)
	fmt.Printf("Output saved to: %s\n\n", *outputPath)
	fmt.Printf("Metrics:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Changed pixels: %d\n", metrics.ChangedPixels)
	fmt.Printf("Max difference: %.1f\n", metrics.MaxDifference)
	fmt.Printf("Mean difference: %.3f\n", metrics.MeanDifference)
	fmt.Printf("Root Mean Square Error (RMSE): %.6f\n", metrics.RMSE)
	fmt.Printf("Correlation: %.4f\n", metrics.Correlation)

	if *peaksPath != "" {
		if err := imageio.Save(difference(input, output), *peaksPath, cfg.Output.Format); err != nil {
			log.Printf("Warning: Failed to save peaks: %v", err)
		} else {
			fmt.Printf("Removed peaks saved to: %s\n", *peaksPath)
		}
	}

	if cfg.Output.SaveSlices && output.Dimension() == 3 {
		fmt.Println("\nExtracting result slices along all axes...")
		viewer := visualization.NewViewer(output)

		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir, cfg.Output.Format); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}

		fmt.Println("Slice extraction completed!")
	}
}

// difference returns |a - b| pixel by pixel
func difference(a, b *ndimage.Image[uint16]) *ndimage.Image[uint16] {
	out := a.DeepCopy()
	data := out.Buffer().Data()
	other := b.Buffer().Data()
	for i, v := range data {
		if v >= other[i] {
			data[i] = v - other[i]
		} else {
			data[i] = other[i] - v
		}
	}
	return out
}
