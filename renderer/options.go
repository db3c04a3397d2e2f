package renderer

type Options struct {
	// Number of frames to render; the last one is written to OutFile.
	// Interactive renderers ignore this value.
	Frames int

	// PNG file receiving the presented image. Leave empty to skip.
	OutFile string

	// Window title for interactive renderers.
	Title string
}
