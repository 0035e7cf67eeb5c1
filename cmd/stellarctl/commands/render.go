package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/internal/render/interaction"
	"github.com/alem-hub/stellar-map/internal/render/scene"
	"github.com/alem-hub/stellar-map/pkg/retry"
)

var renderFlags struct {
	width, height int
	frames        int
	click         string
	focus         string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Build a core's scene headlessly and report what it contains",
	Long: `Loads the learner's map, opens a scene for the core on an offscreen
surface, places the nodes and runs the render loop for a number of frames.
--focus moves the camera to a constellation or node and --click picks the
node under a pixel, as a pointer click would.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var clickX, clickY float64
		if renderFlags.click != "" {
			if _, err := fmt.Sscanf(renderFlags.click, "%g,%g", &clickX, &clickY); err != nil {
				return fmt.Errorf("--click must be x,y: %w", err)
			}
		}

		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.Map.Handle(ctx, mapQuery(cmd))
			if err != nil {
				return err
			}
			core := result.Classification.Core

			manager := scene.NewManager(
				scene.WithLogger(rt.Log),
				scene.WithLinks(rt.Config.Engine.ShowConstellationLinks),
			)
			defer manager.Close()

			surface := offscreen{width: renderFlags.width, height: renderFlags.height}
			s, err := openScene(ctx, manager, core, surface)
			if err != nil {
				return err
			}
			rendered, err := manager.RenderNodes(core, result.Tree)
			if err != nil {
				return err
			}

			if renderFlags.frames > 0 {
				loopCtx, cancel := context.WithTimeout(ctx, time.Duration(renderFlags.frames)*rt.Config.Engine.FrameInterval)
				err := manager.Run(loopCtx, rt.Config.Engine.FrameInterval)
				cancel()
				if err != nil {
					return err
				}
			}

			controller := interaction.NewController(s,
				interaction.WithCacheWindow(rt.Config.Engine.PickCacheWindow),
				interaction.WithLogger(rt.Log),
			)
			report := renderReport{
				Core:       core,
				Tier:       result.Classification.Tier.String(),
				Generation: rendered.Generation,
				Frames:     s.Frames(),
				Nodes:      result.Tree.NodeCount(),
				Meshes:     countKinds(s.Objects()),
				Resources:  s.Resources(),
				Anchors:    rendered.Anchors,
			}
			if renderFlags.focus != "" {
				ev, err := controller.FocusConstellation(renderFlags.focus)
				if err != nil {
					ev, err = controller.FocusNode(renderFlags.focus)
				}
				if err != nil {
					return fmt.Errorf("focus %q: %w", renderFlags.focus, err)
				}
				report.Focus = ev
			}
			if renderFlags.click != "" {
				report.Click = controller.OnPointerClick(clickX, clickY)
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

type renderReport struct {
	Core       visibility.Core         `json:"core"`
	Tier       string                  `json:"tier"`
	Generation uint64                  `json:"generation"`
	Frames     uint64                  `json:"frames"`
	Nodes      int                     `json:"nodes"`
	Meshes     map[string]int          `json:"meshes"`
	Resources  scene.Resources         `json:"resources"`
	Anchors    map[string]scene.Vec3   `json:"anchors"`
	Focus      *interaction.FocusEvent `json:"focus,omitempty"`
	Click      *interaction.ClickEvent `json:"click,omitempty"`
}

// offscreen is a fixed-size surface for headless rendering.
type offscreen struct {
	width, height int
}

func (o offscreen) Size() (int, int) { return o.width, o.height }
func (o offscreen) Visible() bool    { return true }

// openScene retries while the surface reports a zero size.
func openScene(ctx context.Context, m *scene.Manager, core visibility.Core, surface scene.Surface) (*scene.Scene, error) {
	var s *scene.Scene
	err := retry.SurfaceRetrier().Do(ctx, func(context.Context) error {
		var err error
		s, err = m.OpenScene(core, surface)
		if errors.Is(err, shared.ErrSurfaceNotReady) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	return s, nil
}

func countKinds(meshes []*scene.Mesh) map[string]int {
	out := make(map[string]int)
	for _, m := range meshes {
		out[m.Kind().String()]++
	}
	return out
}

func init() {
	addMapFlags(renderCmd)
	renderCmd.Flags().IntVar(&renderFlags.width, "width", 1280, "surface width in pixels")
	renderCmd.Flags().IntVar(&renderFlags.height, "height", 720, "surface height in pixels")
	renderCmd.Flags().IntVar(&renderFlags.frames, "frames", 3, "frames to run before reporting")
	renderCmd.Flags().StringVar(&renderFlags.click, "click", "", "pick the node under pixel x,y")
	renderCmd.Flags().StringVar(&renderFlags.focus, "focus", "", "focus a constellation name or node id")
	rootCmd.AddCommand(renderCmd)
}
