package cmd

import (
	"github.com/urfave/cli"
)

// Load the scene and display its statistics.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	tr, dev, err := setupTracer(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()
	defer tr.Close()

	logger.Noticef("scene information:\n%s", tr.Stats().Scene.Table())
	return nil
}
