// Command scan runs a single analysis or signal scan from the terminal and
// prints the result as JSON or as a table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"candle-signals/config"
	"candle-signals/internal/analysis"
	"candle-signals/internal/binance"
	"candle-signals/internal/candle"
	"candle-signals/internal/logging"
	"candle-signals/internal/signals"
)

func main() {
	mode := flag.String("mode", "signals", "analysis or signals")
	symbol := flag.String("symbol", "", "symbol to analyse (analysis mode)")
	interval := flag.String("interval", "", "candle interval: 4h, 8h, 1d, 3d, 1w or 1M")
	slice := flag.String("slice", "", "candle slice as start,end (analysis mode)")
	impact := flag.String("impact", "", "comma separated impact tiers (signals mode)")
	symbols := flag.String("symbols", "", "comma separated symbols (signals mode)")
	mock := flag.Bool("mock", false, "use generated candles instead of Binance")
	format := flag.String("format", "table", "output format: json or table")
	window := flag.Int("window", 0, "rolling statistics window")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	initConfig := flag.String("init-config", "", "write a sample config to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.GenerateSampleConfig(*initConfig); err != nil {
			fail("Failed to write sample config: %v", err)
		}
		fmt.Printf("Sample config written to %s\n", *initConfig)
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load configuration: %v", err)
	}
	if *window > 0 {
		cfg.AnalysisConfig.WindowSize = *window
	}
	if *interval != "" {
		cfg.AnalysisConfig.DefaultInterval = *interval
	}
	if *mock {
		cfg.BinanceConfig.MockMode = true
	}
	if err := cfg.Validate(); err != nil {
		fail("Invalid configuration: %v", err)
	}

	// Keep stdout clean for the report
	logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr"}))

	var source binance.CandleSource
	if cfg.BinanceConfig.MockMode {
		source = binance.NewMockSource()
	} else {
		client := binance.NewClient(cfg.BinanceConfig.APIKey, cfg.BinanceConfig.BaseURL,
			time.Duration(cfg.BinanceConfig.RequestTimeout)*time.Second)
		client.SetRateLimiter(binance.NewRateLimiter(cfg.BinanceConfig.WeightPerMinute))
		source = client
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "analysis":
		req := analysis.Request{
			Symbol:   orDefault(*symbol, cfg.AnalysisConfig.DefaultSymbol),
			Interval: cfg.AnalysisConfig.DefaultInterval,
		}
		if *slice != "" {
			req.SliceStart, req.SliceEnd = analysis.ParseCandleLength(*slice)
		}
		analyzer := analysis.NewAnalyzer(source, nil, cfg.AnalysisConfig.WindowSize, cfg.AnalysisConfig.KlineLimit)
		result, err := analyzer.Run(ctx, req)
		if err != nil {
			fail("Analysis failed: %v", err)
		}
		if *format == "json" {
			printJSON(result)
			return
		}
		printAnalysis(result)

	case "signals":
		impacts := signals.DefaultImpacts
		if *impact != "" {
			var bad []string
			impacts, bad = signals.ParseImpacts(strings.Split(*impact, ","))
			if len(bad) > 0 {
				fail("Unknown impact tiers: %s", strings.Join(bad, ", "))
			}
		} else if configured, err := cfg.SignalsConfig.Impacts(); err == nil && len(configured) > 0 {
			impacts = configured
		}

		scanner := signals.NewScanner(source, nil, signals.Config{
			WorkerCount: cfg.SignalsConfig.WorkerCount,
			Window:      cfg.AnalysisConfig.WindowSize,
			Interval:    cfg.AnalysisConfig.DefaultInterval,
			Limit:       cfg.AnalysisConfig.KlineLimit,
			Symbols:     cfg.SignalsConfig.Symbols,
			Impacts:     impacts,
		})
		req := signals.ScanRequest{Impacts: impacts}
		if *symbols != "" {
			for _, s := range strings.Split(*symbols, ",") {
				if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
					req.Symbols = append(req.Symbols, s)
				}
			}
		}
		result, err := scanner.Scan(ctx, req)
		if err != nil {
			fail("Scan failed: %v", err)
		}
		if *format == "json" {
			printJSON(result)
			return
		}
		printSignals(result)

	default:
		fail("Unknown mode %q, expected analysis or signals", *mode)
	}
}

func printAnalysis(r *analysis.Result) {
	fmt.Printf("%s %s: %d candles fetched, showing [%d:%d]\n\n", r.Symbol, r.Interval, r.Fetched, r.SliceStart, r.SliceEnd)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tOPEN TIME\tTYPE\tCLOSE\tBODY%\tIMPACT\tPATTERNS")
	for _, report := range r.Candles {
		c := report.Candle
		names := make([]string, 0, len(report.Patterns))
		for _, m := range report.Patterns {
			names = append(names, m.ID)
		}
		impact := string(c.Impact)
		if impact == "" {
			impact = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.1f\t%s\t%s\n",
			report.Index, c.OpenTime.UTC().Format("2006-01-02 15:04"), c.CandleType,
			c.Close, c.BodyWeight, impact, strings.Join(names, " "))
	}
	w.Flush()

	printDiagnostics(r.Diagnostics)
}

func printSignals(r *signals.ScanResult) {
	fmt.Printf("Scan %s: %s, %d symbols (%d failed), %d groups in %dms\n\n",
		r.ScanID, r.Interval, r.SymbolsScanned, r.SymbolsFailed, len(r.Groups), r.DurationMs)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BIAS\tID\tPATTERN\tIMPACT\tSYMBOLS")
	for _, bucket := range []struct {
		name   string
		groups []signals.SignalGroup
	}{
		{"bullish", r.Buckets.Bullish},
		{"neutral", r.Buckets.Neutral},
		{"bearish", r.Buckets.Bearish},
	} {
		for _, g := range bucket.groups {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				bucket.name, g.PatternID, g.Pattern, g.Impact, strings.Join(g.MatchedSymbols, ","))
		}
	}
	w.Flush()

	printDiagnostics(r.Diagnostics)
}

func printDiagnostics(diags []candle.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\n%d diagnostics:\n", len(diags))
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "  %s\n", d)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("Failed to encode result: %v", err)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
