package polling

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// ReportFetcher is satisfied by *portalapi.Client.
type ReportFetcher interface {
	Report(ctx context.Context, name string, uid int) (json.RawMessage, error)
}

// Config holds everything PollReports needs for one business unit.
type Config struct {
	Fetcher     ReportFetcher
	UnitID      int
	Reports     []string // defaults to every known report
	Concurrency int      // defaults to 5 if <= 0
	Log         Logger   // optional; nil = no logging

	// OnReportDone is called per report from worker goroutines. Nil = no callback.
	OnReportDone func(ReportCount)
}

// ReportCount is the outcome of fetching one report.
type ReportCount struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Result holds the counts of every polled report, sorted by name.
type Result struct {
	UnitID int           `json:"unitId"`
	Counts []ReportCount `json:"counts"`
	Errors []error       `json:"-"`
}

// PollReports fetches every report of a business unit concurrently and counts
// its rows. A failing report is recorded and the rest continue, except for an
// expired session, which stops the poll and is returned.
func PollReports(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.UnitID <= 0 {
		return nil, portalapi.ErrNoScope
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	names := cfg.Reports
	if len(names) == 0 {
		names = portalapi.ReportNames()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	nameChan := make(chan string, len(names))
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		fatal  error
		result = &Result{UnitID: cfg.UnitID, Counts: make([]ReportCount, 0, len(names))}
	)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range nameChan {
				if ctx.Err() != nil {
					continue
				}
				count, err := pollOne(ctx, cfg.Fetcher, name, cfg.UnitID, log)

				mu.Lock()
				if errors.Is(err, portalapi.ErrUnauthorized) {
					if fatal == nil {
						fatal = err
					}
					cancel()
					mu.Unlock()
					continue
				}
				if err != nil {
					result.Errors = append(result.Errors, err)
				}
				result.Counts = append(result.Counts, count)
				mu.Unlock()

				if cfg.OnReportDone != nil {
					cfg.OnReportDone(count)
				}
			}
		}()
	}

	for _, n := range names {
		nameChan <- n
	}
	close(nameChan)
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	sort.Slice(result.Counts, func(i, j int) bool { return result.Counts[i].Name < result.Counts[j].Name })
	log.Debugf("Polled %d reports for unit %d, %d failed", len(result.Counts), cfg.UnitID, len(result.Errors))
	return result, nil
}

func pollOne(ctx context.Context, f ReportFetcher, name string, uid int, log Logger) (ReportCount, error) {
	count := ReportCount{Name: name}
	rows, err := f.Report(ctx, name, uid)
	if err != nil {
		log.Warnf("Failed to fetch report %s for unit %d: %v", name, uid, err)
		count.Error = err.Error()
		return count, err
	}
	res := gjson.ParseBytes(rows)
	if res.IsArray() {
		count.Rows = int(res.Get("#").Int())
	} else if res.IsObject() {
		count.Rows = 1
	}
	return count, nil
}
