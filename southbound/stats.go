// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package southbound

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Stats is the controller's counter block. Fields are written with atomic
// adds and read by the CSV logger and by tests.
type Stats struct {
	PacketsIn               uint64
	AdvertisementsFlooded   uint64
	AdvertisementsReplaced  uint64
	AdvertisementsRejected  uint64
	SubscriptionsAdmitted   uint64
	SubscriptionsRejected   uint64
	Acknowledgements        uint64
	MalformedFrames         uint64
}

// DefaultStats is the per-process counter block.
var DefaultStats = &Stats{}

// Header returns the CSV column names, in ToSlice order.
func (s *Stats) Header() []string {
	return []string{
		"PacketsIn",
		"AdvertisementsFlooded",
		"AdvertisementsReplaced",
		"AdvertisementsRejected",
		"SubscriptionsAdmitted",
		"SubscriptionsRejected",
		"Acknowledgements",
		"MalformedFrames",
	}
}

// ToSlice renders a snapshot of the counters.
func (s *Stats) ToSlice() []string {
	return []string{
		fmt.Sprint(atomic.LoadUint64(&s.PacketsIn)),
		fmt.Sprint(atomic.LoadUint64(&s.AdvertisementsFlooded)),
		fmt.Sprint(atomic.LoadUint64(&s.AdvertisementsReplaced)),
		fmt.Sprint(atomic.LoadUint64(&s.AdvertisementsRejected)),
		fmt.Sprint(atomic.LoadUint64(&s.SubscriptionsAdmitted)),
		fmt.Sprint(atomic.LoadUint64(&s.SubscriptionsRejected)),
		fmt.Sprint(atomic.LoadUint64(&s.Acknowledgements)),
		fmt.Sprint(atomic.LoadUint64(&s.MalformedFrames)),
	}
}

// StatsLogger periodically appends a CSV snapshot of DefaultStats, for
// offline evaluation of reservation experiments. The filename part of path
// may contain a Go time format. A path of "" or a period of 0 disables it.
func StatsLogger(path string, period int, log *zap.Logger) {
	if path == "" || period == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(period) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Warn("stats log open failed", zap.Error(err))
			return
		}
		w := csv.NewWriter(f)
		// write header in empty file
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, DefaultStats.Header()...)); err != nil {
				log.Warn("stats log write failed", zap.Error(err))
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, DefaultStats.ToSlice()...)); err != nil {
			log.Warn("stats log write failed", zap.Error(err))
		}
		w.Flush()
		f.Close()
	}
}

// Prometheus mirrors of the counter block, served from the metrics endpoint.
var (
	packetsInTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tsnctl",
		Name:      "packets_in_total",
		Help:      "Punted packets received from the switch.",
	})
	advertisementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsnctl",
		Name:      "advertisements_total",
		Help:      "Processed stream advertisements by outcome.",
	}, []string{"outcome"})
	subscriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsnctl",
		Name:      "subscriptions_total",
		Help:      "Processed stream subscriptions by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(packetsInTotal, advertisementsTotal, subscriptionsTotal)
}
