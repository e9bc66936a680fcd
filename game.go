package grove

import (
	"context"
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// RunConfig configures the window opened by Run.
type RunConfig struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
	// ShowStats prints frame statistics in the top-left corner.
	ShowStats bool
	// ScreenshotDir receives captures queued with World.Screenshot.
	// Defaults to "screenshots".
	ScreenshotDir string
	// OnUpdate, when set, runs after the world's processors each tick.
	OnUpdate func(now time.Time) error
}

// game adapts a World and Scene to ebiten.Game.
type game struct {
	world *World
	scene *Scene
	cfg   RunConfig
	last  SubmitStats
}

func (g *game) Update() error {
	now := time.Now()
	if err := g.world.Update(context.Background(), now); err != nil {
		return err
	}
	if cam := g.scene.DefaultCamera(); cam != nil {
		cam.Update(1 / float64(ebiten.TPS()))
	}
	if g.cfg.OnUpdate != nil {
		return g.cfg.OnUpdate(now)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	stats, err := g.world.Draw(g.scene, screen)
	if err != nil {
		g.world.Logger().Error("draw failed", "err", err)
		return
	}
	g.last = stats
	g.world.flushScreenshots(screen, g.cfg.ScreenshotDir)
	if g.cfg.ShowStats {
		s := g.world.Stats()
		ebitenutil.DebugPrint(screen, fmt.Sprintf("FPS: %.1f\nTPS: %.1f\nTris: %d (culled %d)\nBatches: %d\nLights: %d",
			ebiten.ActualFPS(), ebiten.ActualTPS(), g.last.Triangles, g.last.Culled, g.last.Batches, s.LastLights))
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// Run opens a window and drives world and scene until the window closes.
// The world's processors run once per tick; the scene is drawn once per
// frame through its default camera.
func Run(world *World, scene *Scene, cfg RunConfig) error {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = "screenshots"
	}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	if cfg.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	if world.Options().TickRate > 0 {
		ebiten.SetTPS(int(world.Options().TickRate))
	}
	return ebiten.RunGame(&game{world: world, scene: scene, cfg: cfg})
}
