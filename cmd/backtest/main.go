package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mxf-hedge-bot/internal/backtest"
	"mxf-hedge-bot/internal/config"
	"mxf-hedge-bot/internal/logging"
	"mxf-hedge-bot/internal/market"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func main() {
	mode := flag.String("mode", "grid", "simulation mode: grid or hedge")
	csvPath := flag.String("csv", "", "input CSV file")
	fetch := flag.Bool("fetch", false, "fetch daily candles from the configured history endpoint instead of reading a CSV")
	days := flag.Int("days", 365, "number of daily candles to fetch with -fetch")
	configPath := flag.String("config", "", "optional config path for strategy parameters")
	maPeriod := flag.Int("ma", 20, "moving average period")
	capital := flag.Float64("capital", 1000000, "initial capital")
	etfCapital := flag.Float64("etf-capital", 0, "capital allocated to the ETF leg (hedge mode, defaults to half)")
	verbose := flag.Bool("verbose", false, "print every ledger entry")
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: "info"})
	defer func() { _ = log.Sync() }()

	if *csvPath == "" && !*fetch {
		fatal(log, "either a -csv input file or -fetch is required")
	}

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatalErr(log, "load config", err)
		}
		cfg = loaded
	} else {
		defaulted, err := config.Default()
		if err != nil {
			fatalErr(log, "default config", err)
		}
		cfg = defaulted
	}

	var history *market.HistoryClient
	if *fetch {
		history = market.NewHistoryClient(cfg.Market.HistoryBaseURL, cfg.Market.Timeout, log)
	}

	switch *mode {
	case "grid":
		runGrid(log, cfg, *csvPath, history, *days, *maPeriod, *capital, *verbose)
	case "hedge":
		runHedge(log, cfg, *csvPath, history, *days, *maPeriod, *capital, *etfCapital, *verbose)
	default:
		fatal(log, fmt.Sprintf("unknown mode %q", *mode))
	}
}

func runGrid(log *zap.Logger, cfg *config.Config, path string, history *market.HistoryClient, days, maPeriod int, capital float64, verbose bool) {
	bars, err := gridBars(path, history, cfg, days)
	if err != nil {
		fatalErr(log, "load bars", err)
	}
	result, err := backtest.RunGrid(bars, backtest.GridParams{
		Grid:              cfg.Grid,
		MAPeriod:          maPeriod,
		InitialCapital:    capital,
		PointValue:        cfg.Hedge.ContractMultiplier,
		MarginPerContract: cfg.Risk.MarginPerContract,
	})
	if err != nil {
		fatalErr(log, "run grid simulation", err)
	}

	if verbose {
		printLedger(result.Ledger)
	}
	fmt.Printf("bars:           %d\n", len(bars))
	fmt.Printf("trades:         %d\n", result.TradeCount)
	fmt.Printf("blocked opens:  %d\n", result.BlockedOpens)
	fmt.Printf("open legs:      %d\n", len(result.OpenLegs))
	fmt.Printf("final equity:   %.2f\n", result.FinalEquity)
	fmt.Printf("total return:   %.2f\n", result.TotalReturn)
	fmt.Printf("max drawdown:   %.2f\n", result.MaxDrawdown)
	if result.Liquidated {
		fmt.Println("LIQUIDATED: equity exhausted before the end of the series")
	}
}

func runHedge(log *zap.Logger, cfg *config.Config, path string, history *market.HistoryClient, days, maPeriod int, capital, etfCapital float64, verbose bool) {
	bars, err := hedgeBars(path, history, cfg, days)
	if err != nil {
		fatalErr(log, "load bars", err)
	}
	if etfCapital <= 0 {
		etfCapital = capital / 2
	}
	result, err := backtest.RunHedge(bars, backtest.HedgeParams{
		Hedge:          cfg.Hedge,
		MAPeriod:       maPeriod,
		InitialCapital: capital,
		ETFCapital:     etfCapital,
	})
	if err != nil {
		fatalErr(log, "run hedge simulation", err)
	}

	if verbose {
		printLedger(result.Ledger)
	}
	fmt.Printf("bars:           %d\n", len(bars))
	fmt.Printf("etf shares:     %d\n", result.ETFQuantity)
	fmt.Printf("trades:         %d\n", result.TradeCount)
	fmt.Printf("final equity:   %.2f\n", result.FinalEquity)
	fmt.Printf("total return:   %.2f\n", result.TotalReturn)
	fmt.Printf("max drawdown:   %.2f%%\n", result.MaxDrawdown*100)
	if result.Liquidated {
		fmt.Println("LIQUIDATED: equity exhausted before the end of the series")
	}
}

func printLedger(entries []backtest.LedgerEntry) {
	for _, entry := range entries {
		fmt.Printf("%s  %-11s qty %d  price %.2f  pnl %.2f  %s\n",
			entry.Date.Format(dateLayout), entry.Action, entry.Quantity, entry.Price, entry.PnL, entry.Reason)
	}
}

func gridBars(path string, history *market.HistoryClient, cfg *config.Config, days int) ([]backtest.Bar, error) {
	if path != "" {
		return loadBars(path)
	}
	candles, err := history.DailyCandles(context.Background(), cfg.Market.IndexSymbol, days)
	if err != nil {
		return nil, err
	}
	bars := make([]backtest.Bar, 0, len(candles))
	for _, c := range candles {
		bars = append(bars, backtest.Bar{Date: c.Date, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})
	}
	return bars, nil
}

// hedgeBars joins the ETF and index daily series on trading date; days where
// either side did not trade are dropped.
func hedgeBars(path string, history *market.HistoryClient, cfg *config.Config, days int) ([]backtest.HedgeBar, error) {
	if path != "" {
		return loadHedgeBars(path)
	}
	ctx := context.Background()
	etf, err := history.DailyCandles(ctx, cfg.Market.ETFSymbol, days)
	if err != nil {
		return nil, err
	}
	index, err := history.DailyCandles(ctx, cfg.Market.IndexSymbol, days)
	if err != nil {
		return nil, err
	}
	indexByDate := make(map[string]float64, len(index))
	for _, c := range index {
		indexByDate[c.Date.Format(dateLayout)] = c.Close
	}
	bars := make([]backtest.HedgeBar, 0, len(etf))
	for _, c := range etf {
		indexClose, ok := indexByDate[c.Date.Format(dateLayout)]
		if !ok {
			continue
		}
		bars = append(bars, backtest.HedgeBar{Date: c.Date, ETFClose: c.Close, IndexClose: indexClose})
	}
	return bars, nil
}

// loadBars reads date,open,high,low,close rows. A header row is skipped.
func loadBars(path string) ([]backtest.Bar, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	bars := make([]backtest.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("expected 5 columns (date,open,high,low,close), got %d", len(row))
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(row[0]))
		if err != nil {
			return nil, err
		}
		values := make([]float64, 4)
		for i := 0; i < 4; i++ {
			values[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
			if err != nil {
				return nil, err
			}
		}
		bars = append(bars, backtest.Bar{Date: date, Open: values[0], High: values[1], Low: values[2], Close: values[3]})
	}
	return bars, nil
}

// loadHedgeBars reads date,etf_close,index_close rows. A header row is skipped.
func loadHedgeBars(path string) ([]backtest.HedgeBar, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	bars := make([]backtest.HedgeBar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("expected 3 columns (date,etf_close,index_close), got %d", len(row))
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(row[0]))
		if err != nil {
			return nil, err
		}
		etfClose, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, err
		}
		indexClose, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, err
		}
		bars = append(bars, backtest.HedgeBar{Date: date, ETFClose: etfClose, IndexClose: indexClose})
	}
	return bars, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if len(row) > 0 {
				if _, err := time.Parse(dateLayout, strings.TrimSpace(row[0])); err != nil {
					continue
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func fatal(log *zap.Logger, msg string) {
	log.Error(msg)
	os.Exit(1)
}

func fatalErr(log *zap.Logger, msg string, err error) {
	log.Error(msg, zap.Error(err))
	os.Exit(1)
}
