// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import "math"

func f32bits(f float32) uint32        { return math.Float32bits(f) }
func f32frombits(b uint32) float32    { return math.Float32frombits(b) }
func f64bits(f float64) uint64        { return math.Float64bits(f) }
func f64frombits(b uint64) float64    { return math.Float64frombits(b) }
