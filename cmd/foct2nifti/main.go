package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"foct2nifti/pkg/config"
	"foct2nifti/pkg/histmatch"
	"foct2nifti/pkg/nifti"
	"foct2nifti/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing raw FOCT scan files")
	outputDir := flag.String("output", "converted", "Directory for converted NIfTI volumes")
	configPath := flag.String("config", "foct2nifti.yaml", "Path to YAML configuration file")
	corpusDir := flag.String("reference", "", "Reference image corpus for histogram matching (empty: contrast enhancement only)")
	workers := flag.Int("workers", 0, "Number of files to process concurrently (0: use config value)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}

	fmt.Println("================================")
	fmt.Println("FOCT TO NIFTI VOLUME CONVERSION")
	fmt.Println("================================")

	// Collect the scan files to convert
	paths, err := listScans(*inputDir)
	if err != nil {
		log.Fatalf("Failed to scan input directory: %v", err)
	}
	if len(paths) == 0 {
		log.Fatalf("No .foct files found in %s", *inputDir)
	}
	fmt.Printf("Found %d scan files in %s\n", len(paths), *inputDir)

	// Build the matching target if a reference corpus was supplied.
	// An unusable corpus skips the matching path rather than failing.
	var target *histmatch.Histogram
	if *corpusDir != "" {
		fmt.Printf("Sampling reference corpus from %s...\n", *corpusDir)
		target, err = histmatch.SampleTarget(*corpusDir, histmatch.SamplerConfig{
			SampleCount: cfg.Matching.SampleCount,
			Seed:        cfg.Matching.Seed,
			MinStdDev:   cfg.Matching.MinStdDev,
			SmoothSigma: cfg.Matching.SmoothSigma,
		})
		if err != nil {
			log.Printf("Warning: %v; falling back to contrast enhancement", err)
			target = nil
		}
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Run the batch
	fmt.Println("Starting conversion...")
	startTime := time.Now()
	p := pipeline.New(cfg, target)
	outcomes := p.ProcessBatch(paths)
	elapsed := time.Since(startTime)

	// Persist successful volumes and report per-file results
	succeeded, failed := 0, 0
	for i := range outcomes {
		out := &outcomes[i]
		name := strings.TrimSuffix(filepath.Base(out.Path), filepath.Ext(out.Path))

		if out.Failed() {
			failed++
			fmt.Printf("FAILED  %s: [%s] %v\n", name, out.Kind, out.Err)
			continue
		}

		destPath, fellBack, err := persist(out, *outputDir, name, cfg.Output.Compress)
		if err != nil {
			failed++
			fmt.Printf("FAILED  %s: [%s] %v\n", name, pipeline.KindSerializationFailure, err)
			continue
		}
		succeeded++

		fmt.Printf("OK      %s -> %s (%dx%dx%d)\n", name, destPath,
			out.Shape.Depth, out.Shape.Width, out.Shape.Height)
		if out.Recovered {
			fmt.Printf("        recovered non-standard shape heuristically\n")
		}
		if fellBack {
			fmt.Printf("        NIfTI write failed, saved raw fallback\n")
		}
		for _, w := range out.Warnings {
			fmt.Printf("        warning [%s]: %s\n", w.Kind, w.Message)
		}
		if out.Metrics != nil {
			fmt.Printf("        match quality: corr=%.3f bhattacharyya=%.4f kl=%.4f\n",
				out.Metrics.Correlation, out.Metrics.BhattacharyyaDistance, out.Metrics.KLDivergence)
		}
	}

	fmt.Printf("\nConversion completed in %.2f seconds: %d succeeded, %d failed\n",
		elapsed.Seconds(), succeeded, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// listScans returns the .foct files under dir, sorted by name.
func listScans(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".foct") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// persist writes a finished volume as NIfTI, falling back to the raw
// float32 dump when the primary format write fails.
func persist(out *pipeline.Outcome, dir, name string, compress bool) (string, bool, error) {
	ext := ".nii"
	if compress {
		ext = ".nii.gz"
	}
	destPath := filepath.Join(dir, name+ext)

	if err := nifti.Save(destPath, out.Volume); err != nil {
		rawPath := filepath.Join(dir, name+".bin")
		if rawErr := nifti.SaveRaw(rawPath, out.Volume); rawErr != nil {
			return "", false, fmt.Errorf("primary write failed (%v), fallback failed: %w", err, rawErr)
		}
		return rawPath, true, nil
	}
	return destPath, false, nil
}
