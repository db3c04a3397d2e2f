package cmd

import (
	"context"
	"os"
	"os/signal"
	"runtime"

	"github.com/ML200/RoyalTracer-DX/renderer"
	"github.com/ML200/RoyalTracer-DX/scene"
	"github.com/urfave/cli"
)

// Render a fixed number of frames and write the selected layer to a file.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	tr, dev, err := setupTracer(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := renderer.Options{
		Frames:  ctx.Int("frames"),
		OutFile: ctx.String("out"),
	}
	r, err := renderer.NewHeadless(sigCtx, tr, scene.DefaultCamera(), opts)
	if err != nil {
		tr.Close()
		return err
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		return err
	}

	logger.Noticef("frame statistics\n%s", r.Stats().Table())
	return nil
}

// Render frames inside a window until the user closes it.
func RenderInteractive(ctx *cli.Context) error {
	setupLogging(ctx)

	// glfw calls must be made from the main thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tr, dev, err := setupTracer(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()

	r, err := renderer.NewInteractive(tr, scene.DefaultCamera(), renderer.Options{Title: "royaltracer"})
	if err != nil {
		tr.Close()
		return err
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		return err
	}

	logger.Noticef("frame statistics\n%s", r.Stats().Table())
	return nil
}
