// Package grove is a concurrent 3D scene graph for [Ebitengine].
//
// Grove keeps a named hierarchy of nodes that many goroutines may edit at
// once, renders it through a camera with an explicit matrix stack, and
// drives it with behaviours that tick at their own rates.
//
// # Quick start
//
// The simplest way to get started is [Run], which creates a window and game
// loop for you:
//
//	world, err := grove.NewWorld(grove.DefaultOptions())
//	if err != nil { ... }
//	scene := grove.NewScene("main")
//	world.AddScene(scene)
//	scene.Add(grove.NewBox("crate", grove.Vec3{X: 1, Y: 1, Z: 1}), grove.NewLight("sun"))
//	scene.DefaultCamera().SetPosition(grove.Vec3{Z: 5})
//	grove.Run(world, scene, grove.RunConfig{Title: "Crate", Width: 640, Height: 480})
//
// Headless programs call [World.Run] instead, which ticks the world's
// processors at a fixed rate until the context is cancelled.
//
// # Hierarchy
//
// Every element is a [Node]. Nodes live in [Container]s, whose children are
// kept in a [Collection]: a copy-on-write name map updated with atomic
// compare-and-swap, so Add, Remove and Rename never block readers. Names are
// unique among siblings; an empty name is replaced by a generated one such
// as "Object #001". A node's id joins the names from the top of the
// hierarchy with [Separator]:
//
//	level := grove.NewContainer("level")
//	world.Root().Add(level)
//	level.Add(grove.NewObject("door"))
//	door, _ := world.Root().Get("level.door")
//
// # Rendering
//
// [Camera.Render] walks the scene without recursion, pushing a matrix for
// every positioned node and popping it after the node's subtree. Any
// [Renderer] can receive the output; [CommandBuffer] records it and submits
// depth-sorted, shaded triangles to an ebiten image.
//
// # Behaviours
//
// A [Behaviour] applies a [NodeProcessor] to its subscribers at a target
// rate. [NewGravity], [NewNewtonianBehaviour] and [NewParticleBehaviour]
// cover motion; [Animator] runs [gween] tweens.
//
// Scenes load from and save to YAML with [DecodeNodes] and [MarshalNodes].
// The ecs sub-module mirrors hierarchy events into a [Donburi] world.
//
// [Ebitengine]: https://ebitengine.org
// [gween]: https://github.com/tanema/gween
// [Donburi]: https://github.com/yohamta/donburi
package grove
