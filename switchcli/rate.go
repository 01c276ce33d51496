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

// Package switchcli programs per-stream rate-limiting classification rules
// into the switch over its CLI side-channel.
package switchcli

// The switch hardware limits rates in 64 kbit/s steps up to 960 kbit/s and in
// 100 kbit/s steps from 1 Mbit/s upward; nothing exists in between.
const (
	lowStep    = 64000
	lowCeiling = 960000
	highFloor  = 1000000
	highStep   = 100000
)

// Quantize maps a raw burst rate in bit/s to the closest rate the hardware
// can enforce that is not below it.
func Quantize(rate uint64) uint64 {
	switch {
	case rate <= lowCeiling:
		return (rate + lowStep - 1) / lowStep * lowStep
	case rate <= highFloor:
		return highFloor
	default:
		return (rate + highStep - 1) / highStep * highStep
	}
}
