package cmd

import (
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/urfave/cli"
)

var logger = log.New("royaltracer")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
