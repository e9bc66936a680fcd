package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/phanxgames/grove"
)

// --- Flags ---
var (
	configPath  string
	logLevel    string
	debug       bool
	watch       bool
	width       int
	height      int
	showStats   bool
	tps         float64
	maxFrames   int
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:           "groveview",
		Short:         "View, run and inspect grove scene files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	viewCmd = &cobra.Command{
		Use:   "view [scene.yaml]",
		Short: "Open a scene in a window",
		Args:  cobra.ExactArgs(1),
		RunE:  runView,
	}

	runCmd = &cobra.Command{
		Use:   "run [scene.yaml]",
		Short: "Run a scene headless, rendering into a command buffer",
		Args:  cobra.ExactArgs(1),
		RunE:  runHeadless,
	}

	dumpCmd = &cobra.Command{
		Use:   "dump [scene.yaml]",
		Short: "Print the node tree of a scene file",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "options file (.yaml or .toml)")
	pf.StringVar(&logLevel, "log-level", "", "override the configured log level")
	pf.BoolVar(&debug, "debug", false, "enable debug checks and frame logging")

	viewCmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload the scene when the file changes")
	viewCmd.Flags().IntVar(&width, "width", 960, "window width")
	viewCmd.Flags().IntVar(&height, "height", 540, "window height")
	viewCmd.Flags().BoolVar(&showStats, "stats", true, "draw frame statistics")

	runCmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload the scene when the file changes")
	runCmd.Flags().Float64Var(&tps, "tps", 0, "ticks per second (defaults to the configured tick rate)")
	runCmd.Flags().IntVar(&maxFrames, "frames", 0, "stop after this many frames, 0 runs until interrupted")
	runCmd.Flags().IntVar(&width, "width", 960, "render target width")
	runCmd.Flags().IntVar(&height, "height", 540, "render target height")
	runCmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(viewCmd, runCmd, dumpCmd)
}

// loadOptions reads --config and applies the command-line overrides.
// Resources resolve relative to the scene file's directory.
func loadOptions(scenePath string) (grove.Options, error) {
	opts := grove.DefaultOptions()
	if configPath != "" {
		var err error
		if opts, err = grove.LoadOptions(configPath); err != nil {
			return opts, err
		}
	}
	if logLevel != "" {
		opts.LogLevel = logLevel
	}
	if debug {
		opts.Debug = true
	}
	opts.FS = os.DirFS(filepath.Dir(scenePath))
	return opts, nil
}

// openWorld creates a world and loads the first scene of the file at path.
func openWorld(path string) (*grove.World, *grove.Scene, error) {
	opts, err := loadOptions(path)
	if err != nil {
		return nil, nil, err
	}
	w, err := grove.NewWorld(opts)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	defer f.Close()
	nodes, err := w.LoadScene(f)
	if err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	for _, n := range nodes {
		if s, ok := n.(*grove.Scene); ok {
			return w, s, nil
		}
	}
	w.Close()
	return nil, nil, fmt.Errorf("load %s: no scene node", path)
}

// attachMotion integrates the motion of the scene's direct children.
func attachMotion(w *grove.World, scene *grove.Scene) {
	motion := grove.NewNewtonianBehaviour("motion", 0)
	motion.Watch(scene)
	w.AddProcessor(motion)
}

func runView(cmd *cobra.Command, args []string) error {
	w, scene, err := openWorld(args[0])
	if err != nil {
		return err
	}
	defer w.Close()
	attachMotion(w, scene)

	if watch {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		rw, err := newReloader(args[0], w, scene)
		if err != nil {
			return err
		}
		defer rw.Close()
		go rw.Run(ctx)
	}
	return grove.Run(w, scene, grove.RunConfig{
		Title:     "groveview: " + filepath.Base(args[0]),
		Width:     width,
		Height:    height,
		Resizable: true,
		ShowStats: showStats,
	})
}

func runHeadless(cmd *cobra.Command, args []string) error {
	w, scene, err := openWorld(args[0])
	if err != nil {
		return err
	}
	defer w.Close()
	attachMotion(w, scene)
	log := w.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "addr", metricsAddr, "err", err)
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", "addr", metricsAddr)
	}

	if watch {
		rw, err := newReloader(args[0], w, scene)
		if err != nil {
			return err
		}
		defer rw.Close()
		go rw.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	buf := grove.NewCommandBuffer()
	frames := 0
	err = w.Run(ctx, tps, func(time.Time) error {
		buf.Reset()
		if _, err := w.RenderFrame(scene, buf, width, height); err != nil {
			return err
		}
		frames++
		if maxFrames > 0 && frames >= maxFrames {
			cancel()
		}
		return nil
	})
	s := w.Stats()
	log.Info("stopped", "frames", s.Frames, "fps", s.FPS, "triangles", s.LastTriangles, "lights", s.LastLights)
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	nodes, err := grove.DecodeNodes(f)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, n := range nodes {
		dumpNode(out, n, 0)
	}
	return nil
}

// dumpNode prints n and its subtree, one node per line.
func dumpNode(out io.Writer, n grove.Node, depth int) {
	line := strings.Repeat("  ", depth) + n.AsNode().Name() + " (" + typeName(n) + ")"
	if sp, ok := n.(grove.Spatial); ok {
		if pos := sp.AsObject().Position(); pos != (grove.Vec3{}) {
			line += fmt.Sprintf(" at %g,%g,%g", pos.X, pos.Y, pos.Z)
		}
	}
	fmt.Fprintln(out, line)
	if cn, ok := n.(grove.ContainerNode); ok {
		for _, c := range cn.AsContainer().Children() {
			dumpNode(out, c, depth+1)
		}
	}
}

func typeName(n grove.Node) string {
	t := fmt.Sprintf("%T", n)
	return t[strings.LastIndexByte(t, '.')+1:]
}
