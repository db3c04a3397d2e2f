package main

import (
	"fmt"
	"os"

	"github.com/ML200/RoyalTracer-DX/cmd"
	"github.com/urfave/cli"
)

// Flags shared by all commands that load a scene.
var sceneFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "width",
		Value: 1280,
		Usage: "frame width",
	},
	cli.IntFlag{
		Name:  "height",
		Value: 720,
		Usage: "frame height",
	},
	cli.StringFlag{
		Name:  "preset",
		Value: "default",
		Usage: "dispatch pass preset (default, restir)",
	},
	cli.StringFlag{
		Name:  "passes",
		Usage: "comma-separated list of dispatch stages; use 'barrier' to separate dependent stages. Overrides --preset",
	},
	cli.BoolFlag{
		Name:  "strict-barriers",
		Usage: "reject pass lists where stages sharing reservoir data are not separated by a barrier",
	},
	cli.StringFlag{
		Name:  "shader-dir",
		Value: "shaders",
		Usage: "directory containing the shader libraries",
	},
	cli.StringFlag{
		Name:  "model-dir",
		Usage: "directory for resolving relative model paths",
	},
	cli.IntFlag{
		Name:  "layer",
		Usage: "output layer to display",
	},
	cli.BoolFlag{
		Name:  "animate",
		Usage: "rotate the second instance on every frame",
	},
}

func withSceneFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, sceneFlags...), flags...)
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "royaltracer"
	app.Usage = "render scenes using ReSTIR path tracing"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render scene",
			Subcommands: []cli.Command{
				{
					Name:  "frame",
					Usage: "render frames headless",
					Description: `
Load the model files, render a number of frames and write the selected output
layer of the last frame to a PNG file.`,
					ArgsUsage: "model1.obj model2.obj ...",
					Flags: withSceneFlags(
						cli.IntFlag{
							Name:  "frames",
							Value: 1,
							Usage: "number of frames to render",
						},
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.png",
							Usage: "image filename for the rendered frame",
						},
					),
					Action: cmd.RenderFrame,
				},
				{
					Name:  "interactive",
					Usage: "render interactive view of the scene",
					Description: `
Render the scene inside a window. Drag with the left mouse button to orbit,
the right button to dolly and the middle button to pan. Press 'C' to cycle
the displayed layer, space to toggle raster mode and tab to show frame timings.`,
					ArgsUsage: "model1.obj model2.obj ...",
					Flags:     withSceneFlags(),
					Action:    cmd.RenderInteractive,
				},
			},
		},
		{
			Name:      "info",
			Usage:     "display scene statistics",
			ArgsUsage: "model1.obj model2.obj ...",
			Flags:     withSceneFlags(),
			Action:    cmd.ShowSceneInfo,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
