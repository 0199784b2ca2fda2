// Package main fits NCI growth parameters of one species to measured diameter growth.
//
// The stand CSV lists every stem with its light level; stems marked measured carry an
// observed annual increment. The fitted parameters are written back into a copy of the
// config together with per-stem residuals.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/canopy/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	standPath := flag.String("stand", "", "Stand CSV with observed growth")
	behavior := flag.String("behavior", "nci_growth", "Name of the nci_growth behavior to fit")
	species := flag.String("species", "", "Species whose parameters are fitted")
	step := flag.Int("step", 1, "Timestep whose climate applies to the observations")
	method := flag.String("method", "neldermead", "Optimizer: neldermead or cmaes")
	maxEvals := flag.Int("max-evals", 500, "Maximum number of evaluations")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" || *standPath == "" || *species == "" {
		log.Fatal("--output, --stand and --species are required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()

	var obs []Observation
	f, err := os.Open(*standPath)
	if err != nil {
		log.Fatalf("failed to open stand: %v", err)
	}
	err = gocsv.UnmarshalFile(f, &obs)
	f.Close()
	if err != nil {
		log.Fatalf("failed to read stand: %v", err)
	}

	bc, ok := cfg.Behavior(*behavior)
	if !ok {
		log.Fatalf("no behavior named %q", *behavior)
	}
	params, err := NewParamVector(bc.Params, *species)
	if err != nil {
		log.Fatal(err)
	}

	evaluator, err := NewFitnessEvaluator(cfg, *behavior, obs, params, *step)
	if err != nil {
		log.Fatalf("failed to set up evaluator: %v", err)
	}
	defer evaluator.Close()

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Clamp(params.Denormalize(x)))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // the evaluator shares one stand
	}

	var opt optimize.Method
	switch *method {
	case "neldermead":
		opt = &optimize.NelderMead{}
	case "cmaes":
		opt = &optimize.CmaEsChol{
			InitStepSize: 0.3,
			Population:   4 + 3*dim/2,
		}
	default:
		log.Fatalf("unknown method %q", *method)
	}

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "mse"}
	for _, spec := range params.Specs {
		header = append(header, spec.Tag)
	}
	logWriter.Write(header)

	// Track evaluations and timing
	evalCount := 0
	bestFitness := evaluator.Evaluate(params.DefaultVector())
	bestParams := params.DefaultVector()
	startTime := time.Now()

	fmt.Printf("Fitting %d parameters of %s to %d measured stems (start mse=%.6g)\n",
		dim, *species, evaluator.Measured(), bestFitness)

	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		fitness := originalFunc(x)
		evalCount++

		clamped := params.Clamp(params.Denormalize(x))
		if fitness < bestFitness {
			bestFitness = fitness
			bestParams = clamped
		}

		row := []string{strconv.Itoa(evalCount), strconv.FormatFloat(fitness, 'g', 8, 64)}
		for _, v := range clamped {
			row = append(row, fmt.Sprintf("%.6f", v))
		}
		logWriter.Write(row)

		if evalCount%25 == 0 {
			logWriter.Flush()
			elapsed := time.Since(startTime)
			fmt.Printf("Eval %d/%d: mse=%.6g (best=%.6g) | elapsed: %s\n",
				evalCount, *maxEvals, fitness, bestFitness, formatDuration(elapsed))
		}
		return fitness
	}

	if _, err := optimize.Minimize(problem, initX, settings, opt); err != nil {
		log.Printf("optimization ended: %v", err)
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best mse: %.6g\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s[%s]: %.6f (was %.6f)\n", spec.Tag, *species, bestParams[i], spec.Default)
	}

	// Save best config
	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	fitted, _ := bestCfg.Behavior(*behavior)
	fitted.Params = params.Apply(fitted.Params, bestParams, bestCfg.Derived.SpeciesNames)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}

	residuals, err := evaluator.Residuals(bestParams)
	if err != nil {
		log.Fatalf("failed to compute residuals: %v", err)
	}
	resPath := filepath.Join(*outputDir, "residuals.csv")
	out, err := os.Create(resPath)
	if err != nil {
		log.Fatalf("failed to create residuals file: %v", err)
	}
	defer out.Close()
	if err := gocsv.MarshalFile(&residuals, out); err != nil {
		log.Printf("failed to write residuals: %v", err)
	} else {
		fmt.Printf("Residuals saved to: %s\n", resPath)
	}
}
