package binance

import (
	"fmt"
	"time"
)

// Resolution is a kline interval as spelled by the Binance API and streams.
type Resolution string

// ResolutionMeta holds the bar length and the history depth fetched on bootstrap.
type ResolutionMeta struct {
	Label         string
	Duration      time.Duration
	BootstrapBars int
}

const (
	Resolution1Min   Resolution = "1m"
	Resolution5Min   Resolution = "5m"
	Resolution15Min  Resolution = "15m"
	Resolution30Min  Resolution = "30m"
	Resolution1Hour  Resolution = "1h"
	Resolution4Hour  Resolution = "4h"
	Resolution1Day   Resolution = "1d"
	Resolution1Week  Resolution = "1w"
	Resolution1Month Resolution = "1M"
)

var resolutions = map[Resolution]ResolutionMeta{
	Resolution1Min:   {Label: "1 Minute", Duration: time.Minute, BootstrapBars: 500},        // ~8 hours
	Resolution5Min:   {Label: "5 Minutes", Duration: 5 * time.Minute, BootstrapBars: 288},   // 24 hours
	Resolution15Min:  {Label: "15 Minutes", Duration: 15 * time.Minute, BootstrapBars: 96},  // 24 hours
	Resolution30Min:  {Label: "30 Minutes", Duration: 30 * time.Minute, BootstrapBars: 96},  // 48 hours
	Resolution1Hour:  {Label: "1 Hour", Duration: time.Hour, BootstrapBars: 168},            // 7 days
	Resolution4Hour:  {Label: "4 Hours", Duration: 4 * time.Hour, BootstrapBars: 180},       // 30 days
	Resolution1Day:   {Label: "1 Day", Duration: 24 * time.Hour, BootstrapBars: 365},        // 1 year
	Resolution1Week:  {Label: "1 Week", Duration: 7 * 24 * time.Hour, BootstrapBars: 260},   // 5 years
	Resolution1Month: {Label: "1 Month", Duration: 30 * 24 * time.Hour, BootstrapBars: 60}, // calendar months vary; 30d is nominal
}

// Resolutions lists every supported resolution, shortest first.
func Resolutions() []Resolution {
	return []Resolution{
		Resolution1Min, Resolution5Min, Resolution15Min, Resolution30Min,
		Resolution1Hour, Resolution4Hour, Resolution1Day, Resolution1Week, Resolution1Month,
	}
}

func (r Resolution) IsValid() bool {
	_, ok := resolutions[r]
	return ok
}

// BootstrapBars is how many historical bars a session requests for r, or 0 if r is unknown.
func (r Resolution) BootstrapBars() int {
	return resolutions[r].BootstrapBars
}

func (r Resolution) Meta() (ResolutionMeta, bool) {
	m, ok := resolutions[r]
	return m, ok
}

func (r Resolution) String() string {
	return string(r)
}

// ParseResolution validates s against the supported table.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid resolution: %q", s)
	}
	return r, nil
}
