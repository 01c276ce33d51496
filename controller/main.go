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

package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/tsnworks/tsnctl/admission"
	"github.com/tsnworks/tsnctl/southbound"
	"github.com/tsnworks/tsnctl/switchcli"
)

// switchTelnetPort is where the switch's CLI listens.
const switchTelnetPort = "23"

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "tsnctl"
	myApp.Usage = "reservation controller for real-time streams on a single switch"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":6633",
			Usage: "OpenFlow control channel listen address",
		},
		cli.StringFlag{
			Name:  "switchip",
			Value: "192.168.179.2",
			Usage: "switch CLI endpoint for QoS flow-list programming",
		},
		cli.StringFlag{
			Name:  "switchuser",
			Value: "operator",
			Usage: "switch CLI login user",
		},
		cli.StringFlag{
			Name:  "flowlist",
			Value: "TSN",
			Usage: "name of the QoS flow list owned by this controller",
		},
		cli.Uint64Flag{
			Name:  "linkspeed",
			Value: 100000000,
			Usage: "assumed link speed for all ports, in bit/s",
		},
		cli.IntFlag{
			Name:  "maxhops",
			Value: 2,
			Usage: "maximum hops a stream can pass, reserved for future use",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stdout",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "debug, info, warn, error, fatal",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect counters to a CSV file, aware of timeformat in golang, like: ./stats-20060102.csv",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collect period, in seconds",
		},
		cli.StringFlag{
			Name:  "metrics",
			Value: "",
			Usage: "serve prometheus metrics on this address, empty to disable",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress the per-frame admission messages",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "", // when set, the JSON file must exist on disk
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Listen = c.String("listen")
		config.SwitchIP = c.String("switchip")
		config.SwitchUser = c.String("switchuser")
		config.FlowList = c.String("flowlist")
		config.LinkSpeed = c.Uint64("linkspeed")
		config.MaxHops = c.Int("maxhops")
		config.Log = c.String("log")
		config.LogLevel = c.String("loglevel")
		config.StatsLog = c.String("statslog")
		config.StatsPeriod = c.Int("statsperiod")
		config.Metrics = c.String("metrics")
		config.Pprof = c.Bool("pprof")
		config.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			// Only JSON configuration files are supported at the moment.
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		if err := config.validate(); err != nil {
			color.Red("invalid configuration: %v", err)
			checkError(err)
		}
		if config.StatsPeriod < 0 {
			color.Red("statsperiod %d is negative, disabling stats collection", config.StatsPeriod)
			config.StatsPeriod = 0
		}

		log := newLogger(config.Log, config.LogLevel)
		defer log.Sync()

		log.Info("starting", zap.String("version", VERSION))
		log.Info("configuration",
			zap.String("listen", config.Listen),
			zap.String("switchip", config.SwitchIP),
			zap.String("switchuser", config.SwitchUser),
			zap.String("flowlist", config.FlowList),
			zap.Uint64("linkspeed", config.LinkSpeed),
			zap.Int("maxhops", config.MaxHops),
			zap.String("log", config.Log),
			zap.String("loglevel", config.LogLevel),
			zap.String("statslog", config.StatsLog),
			zap.Int("statsperiod", config.StatsPeriod),
			zap.String("metrics", config.Metrics),
			zap.Bool("pprof", config.Pprof),
			zap.Bool("quiet", config.Quiet))

		// Start the pprof server if the feature is enabled.
		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		// Serve prometheus counters if an endpoint is configured.
		if config.Metrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			go http.ListenAndServe(config.Metrics, mux)
		}

		// Start the CSV stats logger if the feature is enabled.
		go southbound.StatsLogger(config.StatsLog, config.StatsPeriod, log)

		// The CLI side-channel is held exclusively for the process lifetime.
		session, err := switchcli.Dial(
			net.JoinHostPort(config.SwitchIP, switchTelnetPort),
			config.SwitchUser, config.FlowList, log)
		checkError(err)

		store := admission.NewStore()
		engine := admission.NewEngine(store, admission.Calculus{
			LinkSpeed:  config.LinkSpeed,
			ClassDelay: admission.DefaultClassDelay,
		})
		dispatcher := southbound.NewDispatcher(engine, session, log, config.Quiet)

		server := southbound.NewServer(config.Listen, dispatcher, log)
		return server.ListenAndServe()
	}
	myApp.Run(os.Args)
}

func checkError(err error) {
	if err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
