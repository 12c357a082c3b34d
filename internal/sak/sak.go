// Copyright 2022 Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sak ("swiss army knife") holds small, dependency-free helpers
// shared across the streams runtime: cancellation propagation and a
// couple of generic slice utilities.
package sak

import (
	"context"
)

// RunStatus is a cancellation tree. Halting a parent halts every fork.
type RunStatus struct {
	ctx    context.Context
	cancel context.CancelFunc
	parent *RunStatus
}

// NewRunStatus creates a root RunStatus bound to ctx.
func NewRunStatus(ctx context.Context) RunStatus {
	cctx, cancel := context.WithCancel(ctx)
	return RunStatus{ctx: cctx, cancel: cancel}
}

// Fork derives a child RunStatus. Halting the child does not halt the
// parent; halting the parent halts the child.
func (rs RunStatus) Fork() RunStatus {
	cctx, cancel := context.WithCancel(rs.ctx)
	return RunStatus{ctx: cctx, cancel: cancel, parent: &rs}
}

// Ctx returns the context that is cancelled when this RunStatus halts.
func (rs RunStatus) Ctx() context.Context {
	return rs.ctx
}

// Done returns a channel closed when this RunStatus halts.
func (rs RunStatus) Done() <-chan struct{} {
	return rs.ctx.Done()
}

// Halt cancels this RunStatus (and, transitively, anything forked from it).
func (rs RunStatus) Halt() {
	rs.cancel()
}

// Running reports whether this RunStatus has not yet been halted.
func (rs RunStatus) Running() bool {
	select {
	case <-rs.ctx.Done():
		return false
	default:
		return true
	}
}

// Max returns the greater of a and b.
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ToPtrSlice returns a slice of pointers into a freshly allocated copy
// of s, so callers can take the address of each element safely.
func ToPtrSlice[T any](s []T) []*T {
	out := make([]*T, len(s))
	cp := make([]T, len(s))
	copy(cp, s)
	for i := range cp {
		out[i] = &cp[i]
	}
	return out
}
