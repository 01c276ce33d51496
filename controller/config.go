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
	"encoding/json"
	"net"
	"os"

	"github.com/pkg/errors"
)

// Config for the controller
type Config struct {
	Listen      string `json:"listen"`
	SwitchIP    string `json:"switch_ip_address"`
	SwitchUser  string `json:"switch_username"`
	FlowList    string `json:"qos_flow_list_name"`
	LinkSpeed   uint64 `json:"link_speed_bps"`
	MaxHops     int    `json:"max_hops_in_network"`
	Log         string `json:"log"`
	LogLevel    string `json:"loglevel"`
	StatsLog    string `json:"statslog"`
	StatsPeriod int    `json:"statsperiod"`
	Metrics     string `json:"metrics"`
	Pprof       bool   `json:"pprof"`
	Quiet       bool   `json:"quiet"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path) // For read access.
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}

// validate rejects configurations the controller cannot run with.
func (c *Config) validate() error {
	if net.ParseIP(c.SwitchIP) == nil {
		return errors.Errorf("switch_ip_address %q is not a valid address", c.SwitchIP)
	}
	if c.SwitchUser == "" {
		return errors.New("switch_username must not be empty")
	}
	if c.FlowList == "" {
		return errors.New("qos_flow_list_name must not be empty")
	}
	if c.LinkSpeed == 0 {
		return errors.New("link_speed_bps must be a positive integer")
	}
	if c.MaxHops < 0 {
		return errors.Errorf("max_hops_in_network %d is negative", c.MaxHops)
	}
	return nil
}
