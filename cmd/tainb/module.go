package main

import (
	"github.com/reusee/dscope"
	"github.com/reusee/tainb/kernels"
	"github.com/reusee/tainb/sessions"
	"github.com/reusee/tainb/watchers"
)

type Module struct {
	dscope.Module
	Kernels  kernels.Module
	Sessions sessions.Module
	Watchers watchers.Module
}
